package etl

import (
	"errors"
	"fmt"
)

var (
	ErrOpen           = errors.New("open failed")
	ErrParse          = errors.New("parse failed")
	ErrConfig         = errors.New("invalid configuration")
	ErrTransform      = errors.New("transform failed")
	ErrAlreadyRunning = errors.New("migration already running")
)

// Stages reported by StageError.
const (
	StageConfigure = "configure"
	StageOpen      = "open"
	StageCount     = "count"
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
	StageFinish    = "finish"
)

// ParseError reports a record that is not well formed for its format.
// Line is the 1-based physical line, or 0 when unknown.
type ParseError struct {
	Source  string
	Line    int
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error in %s", e.Source)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	msg += ": " + e.Err.Error()
	if e.Content != "" {
		msg += fmt.Sprintf(" (content: %q)", e.Content)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// StageError wraps a failure with the migration stage and page it happened on.
type StageError struct {
	Stage string
	Page  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s failed on page %d: %v", e.Stage, e.Page, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func openError(what, target string, err error) error {
	return fmt.Errorf("%w: unable to open %s '%s': %w", ErrOpen, what, target, err)
}

func configError(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, v...))
}

func snippet(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
