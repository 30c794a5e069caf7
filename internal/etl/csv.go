package etl

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/BartekS5/rowmigrate/pkg/models"
	"github.com/BartekS5/rowmigrate/pkg/utils"
)

const defaultPerPage = 10

// CSVSource reads a delimited text file whose first record names the columns.
type CSVSource struct {
	file   string
	fields []string

	delimiter        rune
	enclosure        rune
	escape           rune
	comment          rune
	lazyQuotes       bool
	trimLeadingSpace bool

	cursor pageCursor
}

// NewCSVSource opens file and reads its header. Fields are separated by
// commas, enclosed in double quotes and escaped with a backslash.
func NewCSVSource(file string) (*CSVSource, error) {
	s := &CSVSource{file: file, delimiter: ',', enclosure: '"', escape: '\\'}
	s.cursor = pageCursor{open: s.openStream, perPage: defaultPerPage}
	if err := s.cursor.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVSource) SetPerPage(perPage int) error {
	if perPage < 1 {
		return configError("per page must be at least 1, got %d", perPage)
	}
	s.cursor.perPage = perPage
	return s.cursor.reset()
}

func (s *CSVSource) SetDelimiter(delimiter rune) error {
	if err := checkSeparators(delimiter, s.enclosure, s.escape); err != nil {
		return err
	}
	s.delimiter = delimiter
	return s.cursor.reset()
}

// SetEnclosure sets the character that quotes a field. 0 turns quoting off.
func (s *CSVSource) SetEnclosure(enclosure rune) error {
	if err := checkSeparators(s.delimiter, enclosure, s.escape); err != nil {
		return err
	}
	s.enclosure = enclosure
	return s.cursor.reset()
}

// SetEscape sets the character that protects the next one inside an
// enclosure. 0 leaves doubled enclosures as the only escape.
func (s *CSVSource) SetEscape(escape rune) error {
	if err := checkSeparators(s.delimiter, s.enclosure, escape); err != nil {
		return err
	}
	s.escape = escape
	return s.cursor.reset()
}

// SetComment makes lines starting with comment be ignored. 0 disables it.
func (s *CSVSource) SetComment(comment rune) error {
	s.comment = comment
	return s.cursor.reset()
}

// SetLazyQuotes allows quotes to appear in unquoted fields and unescaped
// quotes in quoted fields.
func (s *CSVSource) SetLazyQuotes(lazy bool) error {
	s.lazyQuotes = lazy
	return s.cursor.reset()
}

func (s *CSVSource) SetTrimLeadingSpace(trim bool) error {
	s.trimLeadingSpace = trim
	return s.cursor.reset()
}

func (s *CSVSource) GetFields() []string {
	return append([]string(nil), s.fields...)
}

func (s *CSVSource) GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.cursor.page(page, fieldsToRetrieve)
}

func (s *CSVSource) CountDataRows(ctx context.Context) (int, error) {
	f, err := os.Open(s.file)
	if err != nil {
		return 0, openError("CSV file", s.file, err)
	}
	defer f.Close()

	r := s.newReader(f)
	count := 0
	header := true
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, s.parseError(err)
		}
		if header {
			header = false
			continue
		}
		count++
	}
	return count, nil
}

func (s *CSVSource) CountPages(ctx context.Context) (int, error) {
	rows, err := s.CountDataRows(ctx)
	if err != nil {
		return 0, err
	}
	return utils.CountPages(rows, s.cursor.perPage), nil
}

func (s *CSVSource) Close() error {
	return s.cursor.closeStream()
}

func (s *CSVSource) newReader(r io.Reader) *csvReader {
	return &csvReader{
		r:                bufio.NewReader(r),
		comma:            s.delimiter,
		enclosure:        s.enclosure,
		escape:           s.escape,
		comment:          s.comment,
		lazyQuotes:       s.lazyQuotes,
		trimLeadingSpace: s.trimLeadingSpace,
	}
}

func checkSeparators(delimiter, enclosure, escape rune) error {
	bad := func(r rune) bool { return r == '\n' || r == '\r' || r == utf8.RuneError }
	switch {
	case delimiter == 0 || bad(delimiter):
		return configError("invalid CSV delimiter %q", delimiter)
	case bad(enclosure) || enclosure == delimiter:
		return configError("invalid CSV enclosure %q", enclosure)
	case bad(escape) || escape == delimiter:
		return configError("invalid CSV escape %q", escape)
	}
	return nil
}

// openStream opens the file, reads the header into s.fields and leaves the
// reader on the first data record.
func (s *CSVSource) openStream() (recordStream, error) {
	f, err := os.Open(s.file)
	if err != nil {
		return nil, openError("CSV file", s.file, err)
	}

	r := s.newReader(f)
	header, err := r.Read()
	switch {
	case errors.Is(err, io.EOF):
		s.fields = nil
	case err != nil:
		f.Close()
		return nil, s.parseError(err)
	default:
		s.fields = append([]string(nil), header...)
	}

	return &csvStream{source: s, file: f, reader: r, fields: s.fields}, nil
}

func (s *CSVSource) parseError(err error) error {
	line := 0
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		line = pe.Line
	}
	return &ParseError{Source: s.file, Line: line, Err: err}
}

type csvStream struct {
	source *CSVSource
	file   *os.File
	reader *csvReader
	fields []string
}

func (c *csvStream) skip() error {
	_, err := c.reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return c.source.parseError(err)
	}
	return err
}

func (c *csvStream) next(want fieldSet) (*models.DataRow, error) {
	record, err := c.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, err
	}
	if err != nil {
		return nil, c.source.parseError(err)
	}

	row := models.NewDataRow()
	for i, value := range record {
		if i >= len(c.fields) {
			break
		}
		if want.has(c.fields[i]) {
			row.AddDataItem(c.fields[i], value)
		}
	}
	return row, nil
}

func (c *csvStream) close() error {
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.source.file, err)
	}
	return nil
}

// CSVDestination writes rows to a CSV file. Without explicit field names the
// header is the union of fields in the first batch, in first-seen order, and
// stays fixed for the rest of the run.
type CSVDestination struct {
	file       string
	fieldNames []string

	out    *os.File
	writer *csv.Writer
	rowNum int
}

// NewCSVDestination writes to file. fieldNames may be nil.
func NewCSVDestination(file string, fieldNames []string) *CSVDestination {
	return &CSVDestination{file: file, fieldNames: append([]string(nil), fieldNames...)}
}

func (d *CSVDestination) PutDataRows(_ context.Context, rows []*models.DataRow) error {
	if len(rows) == 0 {
		return nil
	}

	if d.out == nil {
		f, err := os.OpenFile(d.file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return openError("CSV destination", d.file, err)
		}
		d.out = f
		d.writer = csv.NewWriter(f)

		if len(d.fieldNames) == 0 {
			d.fieldNames = unionFieldNames(rows)
		}
		if err := d.writer.Write(d.fieldNames); err != nil {
			return fmt.Errorf("writing CSV header to %s: %w", d.file, err)
		}
	}

	values := make([]string, len(d.fieldNames))
	for _, row := range rows {
		flat := row.ToFlatMap()
		for i, name := range d.fieldNames {
			values[i] = flat[name]
		}
		if err := d.writer.Write(values); err != nil {
			return fmt.Errorf("writing CSV row to %s: %w", d.file, err)
		}
		d.rowNum++
	}

	d.writer.Flush()
	if err := d.writer.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", d.file, err)
	}
	return nil
}

func (d *CSVDestination) FinishMigration(context.Context) error {
	if d.out == nil {
		return nil
	}
	d.writer.Flush()
	err := d.writer.Error()
	if cerr := d.out.Close(); err == nil {
		err = cerr
	}
	d.out = nil
	return err
}

// FieldNames returns the header in use, empty before the first batch.
func (d *CSVDestination) FieldNames() []string {
	return append([]string(nil), d.fieldNames...)
}

func unionFieldNames(rows []*models.DataRow) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, row := range rows {
		for _, name := range row.FieldNames() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}

// Rows returns how many rows were written.
func (d *CSVDestination) Rows() int {
	return d.rowNum
}
