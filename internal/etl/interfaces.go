package etl

import (
	"context"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

// Source produces rows in pages of a fixed size.
//
// GetDataRows returns the records in [(page-1)*perPage, page*perPage),
// restricted to fieldsToRetrieve, and an empty slice once the source is
// exhausted. Pages below 1 are treated as 1. A Source is not safe for
// concurrent use.
type Source interface {
	GetFields() []string
	GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error)
	CountDataRows(ctx context.Context) (int, error)
	CountPages(ctx context.Context) (int, error)
	SetPerPage(perPage int) error
	Close() error
}

// Destination accepts batches of rows. FinishMigration is called once after
// the last batch and must be safe to call when no batch was delivered.
type Destination interface {
	PutDataRows(ctx context.Context, rows []*models.DataRow) error
	FinishMigration(ctx context.Context) error
}

// Transformer mutates one row in place.
type Transformer interface {
	Transform(row *models.DataRow) error
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(row *models.DataRow) error

func (f TransformerFunc) Transform(row *models.DataRow) error {
	return f(row)
}
