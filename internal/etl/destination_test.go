package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

func row(pairs ...string) *models.DataRow {
	r := models.NewDataRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.AddDataItem(pairs[i], pairs[i+1])
	}
	return r
}

func TestCSVDestinationPutDataRows(t *testing.T) {
	file := filepath.Join(t.TempDir(), "destination.csv")
	ctx := context.Background()

	d := NewCSVDestination(file, nil)
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("name", "alpha", "value", "1"), row("name", "beta", "value", "2")}))
	require.NoError(t, d.FinishMigration(ctx))

	assert.Equal(t, "name,value\nalpha,1\nbeta,2\n", readFile(t, file))
	assert.Equal(t, 2, d.Rows())
}

func TestCSVDestinationWritesBlankColumnsForMissingValues(t *testing.T) {
	file := filepath.Join(t.TempDir(), "missing_blanks.csv")
	ctx := context.Background()

	d := NewCSVDestination(file, nil)
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{
		row("BaseVehicle", "1995, Ford, Explorer", "DriveType", "4WD", "Part", "14077"),
		row("BaseVehicle", "2017, Honda, Odyssey", "Part", "143305"),
	}))
	require.NoError(t, d.FinishMigration(ctx))

	want := "BaseVehicle,DriveType,Part\n" +
		"\"1995, Ford, Explorer\",4WD,14077\n" +
		"\"2017, Honda, Odyssey\",,143305\n"
	assert.Equal(t, want, readFile(t, file))
}

func TestCSVDestinationHeaderIsUnionOfFirstBatch(t *testing.T) {
	file := filepath.Join(t.TempDir(), "union.csv")
	ctx := context.Background()

	d := NewCSVDestination(file, nil)
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("name", "Al"), row("name", "Al", "value", "5")}))
	// a later batch cannot add columns
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("name", "Bo", "extra", "x")}))
	require.NoError(t, d.FinishMigration(ctx))

	assert.Equal(t, "name,value\nAl,\nAl,5\nBo,\n", readFile(t, file))
	assert.Equal(t, []string{"name", "value"}, d.FieldNames())
}

func TestCSVDestinationExplicitFieldNames(t *testing.T) {
	file := filepath.Join(t.TempDir(), "explicit.csv")
	ctx := context.Background()

	d := NewCSVDestination(file, []string{"b", "a"})
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("a", "1", "c", "3")}))
	require.NoError(t, d.FinishMigration(ctx))

	assert.Equal(t, "b,a\n,1\n", readFile(t, file))
}

func TestCSVDestinationEmptyBatchAndIdempotentFinish(t *testing.T) {
	file := filepath.Join(t.TempDir(), "never.csv")
	ctx := context.Background()

	d := NewCSVDestination(file, nil)
	require.NoError(t, d.PutDataRows(ctx, nil))
	require.NoError(t, d.FinishMigration(ctx))
	require.NoError(t, d.FinishMigration(ctx))
	assert.NoFileExists(t, file)
}

func TestNDJSONDestinationPutDataRows(t *testing.T) {
	file := filepath.Join(t.TempDir(), "destination.ndjson")
	ctx := context.Background()

	d := NewNDJSONDestination(file)
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{
		row("user.name", "Jordan Hall", "user.email", "jordan@example.com"),
	}))
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{
		row("user.name", "Bob", "user.email", "bob@example.com"),
	}))
	require.NoError(t, d.FinishMigration(ctx))
	require.NoError(t, d.FinishMigration(ctx))

	lines := strings.Split(strings.TrimSpace(readFile(t, file)), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, map[string]interface{}{"user": map[string]interface{}{"name": "Jordan Hall", "email": "jordan@example.com"}}, first)
	assert.Equal(t, map[string]interface{}{"user": map[string]interface{}{"name": "Bob", "email": "bob@example.com"}}, second)
}

func TestNDJSONDestinationEmptyContainers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "destination.ndjson")
	ctx := context.Background()

	d := NewNDJSONDestination(file)
	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("title", "x", "meta", "{}", "tags", "[]")}))
	require.NoError(t, d.FinishMigration(ctx))

	assert.JSONEq(t, `{"title":"x","meta":{},"tags":[]}`, strings.TrimSpace(readFile(t, file)))
}

func TestNullDestination(t *testing.T) {
	d := &NullDestination{}
	ctx := context.Background()

	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("a", "1"), row("a", "2")}))
	require.NoError(t, d.FinishMigration(ctx))
	assert.Equal(t, 2, d.Rows())
}

func TestDebugDestination(t *testing.T) {
	var buf bytes.Buffer
	d := NewDebugDestination(&buf)
	ctx := context.Background()

	require.NoError(t, d.PutDataRows(ctx, []*models.DataRow{row("name", "Al")}))
	require.NoError(t, d.FinishMigration(ctx))

	out := buf.String()
	assert.Contains(t, out, "name=Al")
	assert.Contains(t, out, "rows=1")
}
