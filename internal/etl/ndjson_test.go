package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booksNDJSON = `{"Title":"Adventures Of Me","Author":{"Name":"Jordan Hall"}}

{"Title":"All The Things","Author":{"Name":"Mr Bear"}}
`

func TestNDJSONSourceGetFields(t *testing.T) {
	s, err := NewNDJSONSource(writeFile(t, "books.ndjson", booksNDJSON))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"Title", "Author.Name"}, s.GetFields())
}

func TestNDJSONSourceFieldsAreUnionInFirstSeenOrder(t *testing.T) {
	content := `{"a":1}
{"b":{"c":true},"a":2}
{"d":null}
`
	s, err := NewNDJSONSource(writeFile(t, "union.ndjson", content))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"a", "b.c", "d"}, s.GetFields())
}

func TestNDJSONSourceSequentialPagesReuseStream(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "{\"id\":%d}\n", i)
		if i%7 == 0 {
			b.WriteString("\n")
		}
	}
	s, err := NewNDJSONSource(writeFile(t, "ids.ndjson", b.String()))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SetPerPage(10))

	assertSequentialReads(t, s, &s.cursor, []string{"id"}, 25)
}

func TestNDJSONSourceGetDataRows(t *testing.T) {
	s, err := NewNDJSONSource(writeFile(t, "books.ndjson", booksNDJSON))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	fields := []string{"Title", "Author.Name"}
	rows, err := s.GetDataRows(ctx, 1, fields)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	items := rows[0].GetDataItems()
	require.Len(t, items, 2)
	assert.Equal(t, "Title", items[0].FieldName())
	assert.Equal(t, "Adventures Of Me", items[0].Value)
	assert.Equal(t, "Author.Name", items[1].FieldName())
	assert.Equal(t, "Jordan Hall", items[1].Value)

	assert.Equal(t, map[string]string{"Title": "All The Things", "Author.Name": "Mr Bear"}, rows[1].ToFlatMap())

	rows, err = s.GetDataRows(ctx, 2, fields)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNDJSONSourceCountDataRowsAndPages(t *testing.T) {
	s, err := NewNDJSONSource(writeFile(t, "books.ndjson", booksNDJSON))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	n, err := s.CountDataRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pages, err := s.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	require.NoError(t, s.SetPerPage(1))
	pages, err = s.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func numberedNDJSON(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"id\":%d,\"meta\":{\"even\":%t}}\n", i, i%2 == 0)
		if i%4 == 0 {
			b.WriteString("\n   \n")
		}
	}
	return b.String()
}

func TestNDJSONSourcePagesMatchColdRead(t *testing.T) {
	path := writeFile(t, "ids.ndjson", numberedNDJSON(17))
	fields := []string{"id", "meta.even"}

	cold, err := NewNDJSONSource(path)
	require.NoError(t, err)
	require.NoError(t, cold.SetPerPage(100))
	want := readAllPages(t, cold, fields)
	require.Len(t, want, 17)
	assert.Equal(t, map[string]string{"id": "0", "meta.even": "true"}, want[0])
	cold.Close()

	for perPage := 1; perPage <= 18; perPage++ {
		s, err := NewNDJSONSource(path)
		require.NoError(t, err)
		require.NoError(t, s.SetPerPage(perPage))
		assert.Equal(t, want, readAllPages(t, s, fields), "perPage %d", perPage)
		s.Close()
	}
}

func TestNDJSONSourceOutOfOrderMatchesInOrder(t *testing.T) {
	path := writeFile(t, "ids.ndjson", numberedNDJSON(9))
	fields := []string{"id"}
	ctx := context.Background()

	inOrder, err := NewNDJSONSource(path)
	require.NoError(t, err)
	defer inOrder.Close()
	require.NoError(t, inOrder.SetPerPage(3))

	shuffled, err := NewNDJSONSource(path)
	require.NoError(t, err)
	defer shuffled.Close()
	require.NoError(t, shuffled.SetPerPage(3))

	want := map[int][]map[string]string{}
	for _, p := range []int{1, 2, 3} {
		rows, err := inOrder.GetDataRows(ctx, p, fields)
		require.NoError(t, err)
		want[p] = flatMaps(rows)
	}
	for _, p := range []int{3, 1, 2, 2, 1, 3} {
		rows, err := shuffled.GetDataRows(ctx, p, fields)
		require.NoError(t, err)
		assert.Equal(t, want[p], flatMaps(rows), "page %d", p)
	}
}

func TestNDJSONSourceInvalidLine(t *testing.T) {
	path := writeFile(t, "bad.ndjson", "{\"a\":1}\n{\"a\":\n")

	_, err := NewNDJSONSource(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, `{"a":`, pe.Content)
}

func TestNDJSONSourceNonObjectLine(t *testing.T) {
	_, err := NewNDJSONSource(writeFile(t, "scalar.ndjson", "{\"a\":1}\n42\n"))
	assert.ErrorIs(t, err, ErrParse)

	_, err = NewNDJSONSource(writeFile(t, "array.ndjson", "[1,2]\n"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestNDJSONSourceOpenError(t *testing.T) {
	_, err := NewNDJSONSource("/does/not/exist.ndjson")
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNDJSONSourceLastLineWithoutNewline(t *testing.T) {
	s, err := NewNDJSONSource(writeFile(t, "tail.ndjson", "{\"a\":1}\n{\"a\":2}"))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []map[string]string{{"a": "1"}, {"a": "2"}}, readAllPages(t, s, []string{"a"}))
}
