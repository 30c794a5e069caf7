package etl

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// csvReader reads delimited records with a configurable enclosure and
// escape character. Inside an enclosure the escape character makes the
// next character literal and both are kept in the value, so "a\"b" reads
// as a\"b. A doubled enclosure always stands for one enclosure character.
// Errors are *csv.ParseError values with 1-based byte columns.
type csvReader struct {
	r *bufio.Reader

	comma            rune
	enclosure        rune // 0 disables quoting
	escape           rune // 0 disables escaping
	comment          rune
	lazyQuotes       bool
	trimLeadingSpace bool

	line int
}

// Read returns the next record. Empty lines and comment lines are skipped.
// It returns io.EOF when no records are left.
func (r *csvReader) Read() ([]string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		if r.comment != 0 && strings.HasPrefix(line, string(r.comment)) {
			continue
		}
		return r.parseRecord(line)
	}
}

func (r *csvReader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	r.line++
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func (r *csvReader) parseRecord(line string) ([]string, error) {
	start := r.line
	var fields []string
	pos := 0

	for {
		if r.trimLeadingSpace {
			pos = len(line) - len(strings.TrimLeftFunc(line[pos:], unicode.IsSpace))
		}

		if r.enclosure == 0 || !strings.HasPrefix(line[pos:], string(r.enclosure)) {
			field := line[pos:]
			end := strings.IndexRune(field, r.comma)
			if end >= 0 {
				field = field[:end]
			}
			if !r.lazyQuotes && r.enclosure != 0 {
				if i := strings.IndexRune(field, r.enclosure); i >= 0 {
					return nil, r.errorAt(start, pos+i, csv.ErrBareQuote)
				}
			}
			fields = append(fields, field)
			if end < 0 {
				return fields, nil
			}
			pos += end + utf8.RuneLen(r.comma)
			continue
		}

		pos += utf8.RuneLen(r.enclosure)
		var value strings.Builder
	quoted:
		for {
			if pos >= len(line) {
				next, err := r.readLine()
				if errors.Is(err, io.EOF) {
					if !r.lazyQuotes {
						return nil, r.errorAt(start, pos, csv.ErrQuote)
					}
					return append(fields, value.String()), nil
				}
				if err != nil {
					return nil, err
				}
				value.WriteByte('\n')
				line, pos = next, 0
				continue
			}

			ch, size := utf8.DecodeRuneInString(line[pos:])
			pos += size
			switch {
			case r.escape != 0 && ch == r.escape && ch != r.enclosure:
				value.WriteRune(ch)
				if pos < len(line) {
					next, n := utf8.DecodeRuneInString(line[pos:])
					value.WriteRune(next)
					pos += n
				}

			case ch == r.enclosure:
				if pos == len(line) {
					return append(fields, value.String()), nil
				}
				next, n := utf8.DecodeRuneInString(line[pos:])
				switch {
				case next == r.enclosure:
					value.WriteRune(next)
					pos += n
				case next == r.comma:
					pos += n
					break quoted
				case r.lazyQuotes:
					value.WriteRune(ch)
				default:
					return nil, r.errorAt(start, pos, csv.ErrQuote)
				}

			default:
				value.WriteRune(ch)
			}
		}
		fields = append(fields, value.String())
	}
}

func (r *csvReader) errorAt(start, offset int, err error) error {
	return &csv.ParseError{StartLine: start, Line: r.line, Column: offset + 1, Err: err}
}
