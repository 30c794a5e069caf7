package etl

import (
	"errors"
	"io"

	"github.com/BartekS5/rowmigrate/pkg/models"
)

// recordStream is a forward-only reader over the data records of a file.
// Both methods return io.EOF at the end of the data.
type recordStream interface {
	skip() error
	next(fields fieldSet) (*models.DataRow, error)
	close() error
}

type fieldSet map[string]struct{}

func newFieldSet(fields []string) fieldSet {
	set := make(fieldSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func (s fieldSet) has(field string) bool {
	_, ok := s[field]
	return ok
}

// pageCursor serves pages from a live recordStream. Sequential requests
// continue from the open stream; anything else reopens it and skips ahead.
type pageCursor struct {
	open    func() (recordStream, error)
	perPage int

	stream       recordStream
	currentPage  int
	nextRowIndex int
}

func (c *pageCursor) reset() error {
	c.closeStream()
	stream, err := c.open()
	if err != nil {
		return err
	}
	c.stream = stream
	return nil
}

func (c *pageCursor) closeStream() error {
	var err error
	if c.stream != nil {
		err = c.stream.close()
	}
	c.stream = nil
	c.currentPage = 0
	c.nextRowIndex = 0
	return err
}

func (c *pageCursor) page(page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if page < 1 {
		page = 1
	}
	desiredOffset := (page - 1) * c.perPage

	if c.stream == nil || page != c.currentPage+1 || desiredOffset < c.nextRowIndex {
		if err := c.reset(); err != nil {
			return nil, err
		}
	}

	for c.nextRowIndex < desiredOffset {
		err := c.stream.skip()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c.nextRowIndex++
	}

	fields := newFieldSet(fieldsToRetrieve)
	rows := make([]*models.DataRow, 0, c.perPage)
	if c.nextRowIndex == desiredOffset {
		for len(rows) < c.perPage {
			row, err := c.stream.next(fields)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
			c.nextRowIndex++
		}
	}

	c.currentPage = page
	return rows, nil
}
