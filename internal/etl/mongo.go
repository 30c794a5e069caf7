package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/rowmigrate/pkg/logger"
	"github.com/BartekS5/rowmigrate/pkg/models"
	"github.com/BartekS5/rowmigrate/pkg/utils"
)

// MongoSource pages through a collection sorted by one field. Nested
// documents and arrays are flattened to dotted field names.
type MongoSource struct {
	coll      *mongo.Collection
	sortField string
	perPage   int
	fields    []string
}

// NewMongoSource scans coll once to collect every flattened field name in
// first-seen order.
func NewMongoSource(ctx context.Context, coll *mongo.Collection) (*MongoSource, error) {
	s := &MongoSource{coll: coll, sortField: "_id", perPage: defaultPerPage}

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: s.sortField, Value: 1}}))
	if err != nil {
		return nil, openError("Mongo collection", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, &ParseError{Source: coll.Name(), Err: err}
		}
		utils.FlattenBSON(doc, func(path, _ string) {
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				s.fields = append(s.fields, path)
			}
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, openError("Mongo collection", coll.Name(), err)
	}
	return s, nil
}

// SetSortField sets the field pages are sorted by. Default "_id".
func (s *MongoSource) SetSortField(field string) *MongoSource {
	if field != "" {
		s.sortField = field
	}
	return s
}

func (s *MongoSource) SetPerPage(perPage int) error {
	if perPage < 1 {
		return configError("per page must be at least 1, got %d", perPage)
	}
	s.perPage = perPage
	return nil
}

func (s *MongoSource) GetFields() []string {
	return append([]string(nil), s.fields...)
}

func (s *MongoSource) GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: s.sortField, Value: 1}}).
		SetSkip(int64((page - 1) * s.perPage)).
		SetLimit(int64(s.perPage))

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s page %d: %w", s.coll.Name(), page, err)
	}
	defer cursor.Close(ctx)

	want := newFieldSet(fieldsToRetrieve)
	var out []*models.DataRow
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, &ParseError{Source: s.coll.Name(), Err: err}
		}
		row := models.NewDataRow()
		utils.FlattenBSON(doc, func(path, value string) {
			if want.has(path) {
				row.AddDataItem(path, value)
			}
		})
		out = append(out, row)
	}
	return out, cursor.Err()
}

func (s *MongoSource) CountDataRows(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.coll.Name(), err)
	}
	return int(n), nil
}

func (s *MongoSource) CountPages(ctx context.Context) (int, error) {
	rows, err := s.CountDataRows(ctx)
	if err != nil {
		return 0, err
	}
	return utils.CountPages(rows, s.perPage), nil
}

// Close is a no-op; the caller owns the client.
func (s *MongoSource) Close() error {
	return nil
}

// MongoDestination writes each batch with one BulkWrite. Dotted field names
// become nested documents. With a key field, rows are upserted on it and
// fields missing from a row are left untouched.
type MongoDestination struct {
	coll     *mongo.Collection
	keyField string
	rowNum   int
}

func NewMongoDestination(coll *mongo.Collection) *MongoDestination {
	return &MongoDestination{coll: coll}
}

func (d *MongoDestination) SetKeyField(field string) *MongoDestination {
	d.keyField = field
	return d
}

func (d *MongoDestination) PutDataRows(ctx context.Context, rows []*models.DataRow) error {
	if len(rows) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		key := row.GetDataItemByFieldName(d.keyField)
		if d.keyField == "" || key == nil {
			doc := utils.NestDocument(row.FieldNames(), row.ToFlatMap())
			writes = append(writes, mongo.NewInsertOneModel().SetDocument(doc))
			continue
		}

		// dotted paths in $set keep sibling fields of nested documents; the
		// upsert copies the key from the filter
		set := bson.D{}
		for _, item := range row.GetDataItems() {
			if item.FieldName() != d.keyField {
				set = append(set, bson.E{Key: item.FieldName(), Value: utils.LeafValue(item.Value)})
			}
		}
		filter := bson.D{{Key: d.keyField, Value: key.Value}}
		update := bson.D{{Key: "$set", Value: set}}
		if len(set) == 0 {
			update = bson.D{{Key: "$setOnInsert", Value: filter}}
		}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	res, err := d.coll.BulkWrite(ctx, writes)
	if err != nil {
		return fmt.Errorf("writing batch to %s: %w", d.coll.Name(), err)
	}
	d.rowNum += len(rows)
	logger.Debugf("Mongo BulkWrite: Insert %d, Match %d, Mod %d, Upsert %d",
		res.InsertedCount, res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}

func (d *MongoDestination) FinishMigration(context.Context) error {
	return nil
}

// Rows returns how many rows were written.
func (d *MongoDestination) Rows() int {
	return d.rowNum
}
