package etl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BartekS5/rowmigrate/pkg/models"
	"github.com/BartekS5/rowmigrate/pkg/utils"
)

// NDJSONSource reads newline-delimited JSON: one object per non-blank line.
// Nested objects are flattened to dotted field names.
type NDJSONSource struct {
	file   string
	fields []string
	cursor pageCursor
}

// NewNDJSONSource scans file once to discover its fields.
func NewNDJSONSource(file string) (*NDJSONSource, error) {
	s := &NDJSONSource{file: file}
	s.cursor = pageCursor{open: s.openStream, perPage: defaultPerPage}

	fields, err := s.computeFields()
	if err != nil {
		return nil, err
	}
	s.fields = fields
	return s, nil
}

func (s *NDJSONSource) SetPerPage(perPage int) error {
	if perPage < 1 {
		return configError("per page must be at least 1, got %d", perPage)
	}
	s.cursor.perPage = perPage
	return s.cursor.reset()
}

func (s *NDJSONSource) GetFields() []string {
	return append([]string(nil), s.fields...)
}

func (s *NDJSONSource) GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.cursor.page(page, fieldsToRetrieve)
}

func (s *NDJSONSource) CountDataRows(ctx context.Context) (int, error) {
	lr, err := s.openLines()
	if err != nil {
		return 0, err
	}
	defer lr.file.Close()

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		_, err := lr.readLine()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
		count++
	}
}

func (s *NDJSONSource) CountPages(ctx context.Context) (int, error) {
	rows, err := s.CountDataRows(ctx)
	if err != nil {
		return 0, err
	}
	return utils.CountPages(rows, s.cursor.perPage), nil
}

func (s *NDJSONSource) Close() error {
	return s.cursor.closeStream()
}

// computeFields is the union of flattened keys over every line, in
// first-seen order. It uses its own handle, not the page cursor.
func (s *NDJSONSource) computeFields() ([]string, error) {
	lr, err := s.openLines()
	if err != nil {
		return nil, err
	}
	defer lr.file.Close()

	var fields []string
	seen := make(map[string]struct{})
	for {
		line, err := lr.readLine()
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		doc, err := lr.decode(line)
		if err != nil {
			return nil, err
		}
		utils.FlattenJSON(doc, func(path, _ string) {
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				fields = append(fields, path)
			}
		})
	}
}

func (s *NDJSONSource) openLines() (*lineReader, error) {
	f, err := os.Open(s.file)
	if err != nil {
		return nil, openError("NDJSON file", s.file, err)
	}
	return &lineReader{name: s.file, file: f, reader: bufio.NewReader(f)}, nil
}

func (s *NDJSONSource) openStream() (recordStream, error) {
	return s.openLines()
}

// lineReader yields trimmed, non-blank lines and tracks the physical line number.
type lineReader struct {
	name   string
	file   *os.File
	reader *bufio.Reader
	line   int
}

func (l *lineReader) readLine() (string, error) {
	for {
		raw, err := l.reader.ReadString('\n')
		if raw == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("reading %s: %w", l.name, err)
		}
		l.line++
		line := strings.TrimSpace(raw)
		if line != "" {
			return line, nil
		}
		if err != nil {
			return "", io.EOF
		}
	}
}

func (l *lineReader) decode(line string) (gjson.Result, error) {
	if !gjson.Valid(line) {
		return gjson.Result{}, &ParseError{Source: l.name, Line: l.line, Content: snippet(line), Err: errors.New("invalid JSON")}
	}
	doc := gjson.Parse(line)
	if !doc.IsObject() {
		return gjson.Result{}, &ParseError{Source: l.name, Line: l.line, Content: snippet(line), Err: errors.New("line must decode to a JSON object")}
	}
	return doc, nil
}

func (l *lineReader) skip() error {
	_, err := l.readLine()
	return err
}

func (l *lineReader) next(want fieldSet) (*models.DataRow, error) {
	line, err := l.readLine()
	if err != nil {
		return nil, err
	}
	doc, err := l.decode(line)
	if err != nil {
		return nil, err
	}

	row := models.NewDataRow()
	utils.FlattenJSON(doc, func(path, value string) {
		if want.has(path) {
			row.AddDataItem(path, value)
		}
	})
	return row, nil
}

func (l *lineReader) close() error {
	return l.file.Close()
}

// NDJSONDestination writes one JSON object per row, turning dotted field
// names back into nested objects.
type NDJSONDestination struct {
	file   string
	out    *os.File
	writer *bufio.Writer
	rowNum int
}

func NewNDJSONDestination(file string) *NDJSONDestination {
	return &NDJSONDestination{file: file}
}

func (d *NDJSONDestination) PutDataRows(_ context.Context, rows []*models.DataRow) error {
	if len(rows) == 0 {
		return nil
	}

	if d.out == nil {
		f, err := os.OpenFile(d.file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return openError("NDJSON destination", d.file, err)
		}
		d.out = f
		d.writer = bufio.NewWriter(f)
	}

	for _, row := range rows {
		doc, err := utils.UnflattenJSON(row.FieldNames(), row.ToFlatMap())
		if err != nil {
			return fmt.Errorf("encoding row %d for %s: %w", d.rowNum+1, d.file, err)
		}
		if _, err := d.writer.WriteString(doc + "\n"); err != nil {
			return fmt.Errorf("writing to %s: %w", d.file, err)
		}
		d.rowNum++
	}
	return d.writer.Flush()
}

func (d *NDJSONDestination) FinishMigration(context.Context) error {
	if d.out == nil {
		return nil
	}
	err := d.writer.Flush()
	if cerr := d.out.Close(); err == nil {
		err = cerr
	}
	d.out = nil
	return err
}
