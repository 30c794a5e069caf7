package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func flatMaps(rows []*models.DataRow) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		out[i] = r.ToFlatMap()
	}
	return out
}

// readAllPages pulls pages 1..n until an empty page.
func readAllPages(t *testing.T, s Source, fields []string) []map[string]string {
	t.Helper()
	var out []map[string]string
	for page := 1; ; page++ {
		rows, err := s.GetDataRows(context.Background(), page, fields)
		require.NoError(t, err)
		if len(rows) == 0 {
			return out
		}
		out = append(out, flatMaps(rows)...)
	}
}

// recordingDestination keeps every batch it receives.
type recordingDestination struct {
	batches  [][]map[string]string
	order    [][]string
	finished int
	failOn   int
}

func (d *recordingDestination) PutDataRows(_ context.Context, rows []*models.DataRow) error {
	if d.failOn > 0 && len(d.batches)+1 == d.failOn {
		return os.ErrPermission
	}
	d.batches = append(d.batches, flatMaps(rows))
	names := make([]string, 0)
	for _, r := range rows {
		names = append(names, r.FieldNames()...)
	}
	d.order = append(d.order, names)
	return nil
}

func (d *recordingDestination) FinishMigration(context.Context) error {
	d.finished++
	return nil
}

func (d *recordingDestination) rows() []map[string]string {
	var out []map[string]string
	for _, b := range d.batches {
		out = append(out, b...)
	}
	return out
}

// countOpens wraps the cursor's opener and counts how often the stream is
// reopened from now on.
func countOpens(c *pageCursor) *int {
	n := 0
	open := c.open
	c.open = func() (recordStream, error) {
		n++
		return open()
	}
	return &n
}

// assertSequentialReads pages through s one page at a time without a
// single reopen, then checks that a repeated and an earlier page reopen once each.
func assertSequentialReads(t *testing.T, s Source, c *pageCursor, fields []string, total int) {
	t.Helper()
	opens := countOpens(c)

	assert.Len(t, readAllPages(t, s, fields), total)
	assert.Equal(t, 0, *opens, "sequential pages reopened the stream")

	last := (total + c.perPage - 1) / c.perPage
	_, err := s.GetDataRows(context.Background(), last, fields)
	require.NoError(t, err)
	assert.Equal(t, 1, *opens, "going back to page %d", last)

	_, err = s.GetDataRows(context.Background(), last, fields)
	require.NoError(t, err)
	assert.Equal(t, 2, *opens, "repeating page %d", last)

	_, err = s.GetDataRows(context.Background(), last+1, fields)
	require.NoError(t, err)
	assert.Equal(t, 2, *opens, "continuing after a reopen")
}
