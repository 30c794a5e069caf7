package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/rowmigrate/pkg/database"
	"github.com/BartekS5/rowmigrate/pkg/logger"
	"github.com/BartekS5/rowmigrate/pkg/models"
	"github.com/BartekS5/rowmigrate/pkg/utils"
)

// SQLTableSource pages through one table. Field names are the table's
// columns qualified with the table name ("users.email").
type SQLTableSource struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
	orderBy string
	perPage int
	columns []string
}

// NewSQLTableSource reads the column list of table. driver is the
// database/sql driver name db was opened with.
func NewSQLTableSource(ctx context.Context, db *sql.DB, driver, table string) (*SQLTableSource, error) {
	dialect, err := database.DialectFor(driver)
	if err != nil {
		return nil, configError("%v", err)
	}
	if table == "" {
		return nil, configError("SQL source needs a table")
	}

	s := &SQLTableSource{db: db, dialect: dialect, table: table, perPage: defaultPerPage}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", dialect.Quote(table)))
	if err != nil {
		return nil, openError("SQL table", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, openError("SQL table", table, err)
	}
	s.columns = cols
	return s, nil
}

// SetOrderBy sets the column pages are ordered by. Without it the order is
// whatever the database returns.
func (s *SQLTableSource) SetOrderBy(column string) *SQLTableSource {
	s.orderBy = column
	return s
}

func (s *SQLTableSource) SetPerPage(perPage int) error {
	if perPage < 1 {
		return configError("per page must be at least 1, got %d", perPage)
	}
	s.perPage = perPage
	return nil
}

func (s *SQLTableSource) GetFields() []string {
	fields := make([]string, len(s.columns))
	for i, c := range s.columns {
		fields[i] = s.table + "." + c
	}
	return fields
}

func (s *SQLTableSource) GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if page < 1 {
		page = 1
	}
	want := newFieldSet(fieldsToRetrieve)
	var cols []string
	for _, c := range s.columns {
		if want.has(s.table + "." + c) {
			cols = append(cols, c)
		}
	}

	selectList := "1"
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = s.dialect.QuoteIdent(c)
		}
		selectList = strings.Join(quoted, ", ")
	}

	orderBy := ""
	if s.orderBy != "" {
		orderBy = s.dialect.QuoteIdent(s.orderBy)
	}
	query := s.dialect.Paginate(
		fmt.Sprintf("SELECT %s FROM %s", selectList, s.dialect.Quote(s.table)),
		orderBy, (page-1)*s.perPage, s.perPage)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s page %d: %w", s.table, page, err)
	}
	defer rows.Close()

	var out []*models.DataRow
	for rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}
		row := models.NewDataRow()
		for i, c := range cols {
			row.AddDataItem(s.table+"."+c, utils.ToString(values[i]))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLTableSource) CountDataRows(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.dialect.Quote(s.table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.table, err)
	}
	return count, nil
}

func (s *SQLTableSource) CountPages(ctx context.Context) (int, error) {
	rows, err := s.CountDataRows(ctx)
	if err != nil {
		return 0, err
	}
	return utils.CountPages(rows, s.perPage), nil
}

// Close is a no-op; the caller owns db.
func (s *SQLTableSource) Close() error {
	return nil
}

// scanValues scans the current row into n generic values. With n == 0 a
// single placeholder column is consumed.
func scanValues(rows *sql.Rows, n int) ([]interface{}, error) {
	if n == 0 {
		var discard interface{}
		return nil, rows.Scan(&discard)
	}
	values := make([]interface{}, n)
	pointers := make([]interface{}, n)
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	return values, nil
}

// SQLDestination inserts rows into a table. With a key field, rows whose key
// already exists are updated instead. The column set is fixed by the first
// batch; field names qualified with the table name are stripped to the
// column name.
type SQLDestination struct {
	db       *sql.DB
	dialect  database.Dialect
	table    string
	keyField string
	columns  []string
	rowNum   int
}

func NewSQLDestination(db *sql.DB, driver, table string) (*SQLDestination, error) {
	dialect, err := database.DialectFor(driver)
	if err != nil {
		return nil, configError("%v", err)
	}
	if table == "" {
		return nil, configError("SQL destination needs a table")
	}
	return &SQLDestination{db: db, dialect: dialect, table: table}, nil
}

// SetKeyField makes PutDataRows update rows whose keyField column matches
// instead of inserting duplicates.
func (d *SQLDestination) SetKeyField(keyField string) *SQLDestination {
	d.keyField = d.column(keyField)
	return d
}

func (d *SQLDestination) column(field string) string {
	return strings.TrimPrefix(field, d.table+".")
}

func (d *SQLDestination) PutDataRows(ctx context.Context, rows []*models.DataRow) error {
	if len(rows) == 0 {
		return nil
	}
	if d.columns == nil {
		seen := make(map[string]struct{})
		for _, f := range unionFieldNames(rows) {
			col := d.column(f)
			if _, dup := seen[col]; !dup {
				seen[col] = struct{}{}
				d.columns = append(d.columns, col)
			}
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction on %s: %w", d.table, err)
	}

	inserted, updated := 0, 0
	for _, row := range rows {
		values := make(map[string]string, row.Len())
		for _, item := range row.GetDataItems() {
			values[d.column(item.FieldName())] = item.Value
		}

		exists := false
		if key, ok := values[d.keyField]; ok && d.keyField != "" {
			exists, err = d.keyExists(ctx, tx, key)
			if err != nil {
				tx.Rollback()
				return err
			}
		}

		if exists {
			err = d.update(ctx, tx, values)
			updated++
		} else {
			err = d.insert(ctx, tx, values)
			inserted++
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("writing row %d to %s: %w", d.rowNum+1, d.table, err)
		}
		d.rowNum++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch to %s: %w", d.table, err)
	}
	logger.Debugf("SQL destination %s: inserted %d, updated %d", d.table, inserted, updated)
	return nil
}

func (d *SQLDestination) keyExists(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	var one int
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		d.dialect.Quote(d.table), d.dialect.QuoteIdent(d.keyField), d.dialect.Placeholder(1))
	err := tx.QueryRowContext(ctx, query, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking key %q in %s: %w", key, d.table, err)
	}
	return true, nil
}

func (d *SQLDestination) insert(ctx context.Context, tx *sql.Tx, values map[string]string) error {
	var names, placeholders []string
	var args []interface{}
	for _, col := range d.columns {
		v, ok := values[col]
		if !ok {
			continue
		}
		args = append(args, v)
		names = append(names, d.dialect.QuoteIdent(col))
		placeholders = append(placeholders, d.dialect.Placeholder(len(args)))
	}
	if len(names) == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.dialect.Quote(d.table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (d *SQLDestination) update(ctx context.Context, tx *sql.Tx, values map[string]string) error {
	var sets []string
	var args []interface{}
	for _, col := range d.columns {
		v, ok := values[col]
		if !ok || col == d.keyField {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = %s", d.dialect.QuoteIdent(col), d.dialect.Placeholder(len(args))))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, values[d.keyField])
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.dialect.Quote(d.table), strings.Join(sets, ", "),
		d.dialect.QuoteIdent(d.keyField), d.dialect.Placeholder(len(args)))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// FinishMigration is a no-op; every batch is committed as it arrives.
func (d *SQLDestination) FinishMigration(context.Context) error {
	return nil
}

// Rows returns how many rows were written.
func (d *SQLDestination) Rows() int {
	return d.rowNum
}
