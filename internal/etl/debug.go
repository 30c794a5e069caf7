package etl

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

// NullDestination discards every row.
type NullDestination struct {
	rows int
}

func (d *NullDestination) PutDataRows(_ context.Context, rows []*models.DataRow) error {
	d.rows += len(rows)
	return nil
}

func (d *NullDestination) FinishMigration(context.Context) error {
	return nil
}

// Rows returns how many rows were discarded.
func (d *NullDestination) Rows() int {
	return d.rows
}

// DebugDestination prints every row as one console log line.
type DebugDestination struct {
	log      zerolog.Logger
	batch    int
	rowNum   int
	finished bool
}

// NewDebugDestination writes to w, or stdout when w is nil.
func NewDebugDestination(w io.Writer) *DebugDestination {
	if w == nil {
		w = os.Stdout
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	return &DebugDestination{log: zerolog.New(out)}
}

func (d *DebugDestination) PutDataRows(_ context.Context, rows []*models.DataRow) error {
	if len(rows) == 0 {
		return nil
	}
	d.batch++
	for _, row := range rows {
		d.rowNum++
		event := d.log.Log().Int("batch", d.batch).Int("row", d.rowNum)
		for _, item := range row.GetDataItems() {
			event = event.Str(item.FieldName(), item.Value)
		}
		event.Msg("row")
	}
	return nil
}

func (d *DebugDestination) FinishMigration(context.Context) error {
	if d.finished {
		return nil
	}
	d.finished = true
	d.log.Log().Int("batches", d.batch).Int("rows", d.rowNum).Msg("finished")
	return nil
}
