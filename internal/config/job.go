package config

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// ErrInvalidJob is wrapped by every job file validation failure.
var ErrInvalidJob = errors.New("invalid job")

// Job describes one migration: where rows come from, where they go and what
// happens to them on the way.
type Job struct {
	Name         string              `mapstructure:"name"`
	PerPage      int                 `mapstructure:"perPage"`
	Fields       []string            `mapstructure:"fields"`
	Rename       []Rename            `mapstructure:"rename"`
	Progress     bool                `mapstructure:"progress"`
	DryRun       bool                `mapstructure:"dryRun"`
	Source       SourceConfig        `mapstructure:"source"`
	Destination  DestinationConfig   `mapstructure:"destination"`
	Transformers []TransformerConfig `mapstructure:"transformers"`
}

// Rename is one output rename. A list of pairs rather than a map keeps the
// field names' case intact.
type Rename struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type SourceConfig struct {
	Type string `mapstructure:"type"`

	// csv, ndjson
	Path             string `mapstructure:"path"`
	Delimiter        string `mapstructure:"delimiter"`
	Enclosure        string `mapstructure:"enclosure"`
	Comment          string `mapstructure:"comment"`
	LazyQuotes       bool   `mapstructure:"lazyQuotes"`
	TrimLeadingSpace bool   `mapstructure:"trimLeadingSpace"`

	// Escape is unset for the default backslash; an empty string turns it off.
	Escape *string `mapstructure:"escape"`

	// sql, wordpress
	Driver         string   `mapstructure:"driver"`
	DSN            string   `mapstructure:"dsn"`
	Table          string   `mapstructure:"table"`
	OrderBy        string   `mapstructure:"orderBy"`
	Prefix         string   `mapstructure:"prefix"`
	PostType       string   `mapstructure:"postType"`
	Terms          []string `mapstructure:"terms"`
	TermsSeparator string   `mapstructure:"termsSeparator"`

	// mongo
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	SortField  string `mapstructure:"sortField"`
}

type DestinationConfig struct {
	Type string `mapstructure:"type"`

	// csv, ndjson
	Path   string   `mapstructure:"path"`
	Fields []string `mapstructure:"fields"`

	// sql
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	KeyField string `mapstructure:"keyField"`

	// mongo
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type TransformerConfig struct {
	Type   string `mapstructure:"type"`
	Field  string `mapstructure:"field"`
	Target string `mapstructure:"target"`
	Value  string `mapstructure:"value"`
}

// LoadJob reads a YAML or JSON job file; the format follows the extension.
func LoadJob(path string) (*Job, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read job file '%s': %w", path, err)
	}

	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return nil, fmt.Errorf("failed to parse job file '%s': %w", path, err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job file '%s': %w", path, err)
	}
	return &job, nil
}

// Validate checks the parts of a job that do not need a live connection.
func (j *Job) Validate() error {
	if j.PerPage < 0 {
		return invalid("perPage must not be negative, got %d", j.PerPage)
	}

	switch j.Source.Type {
	case "csv", "ndjson":
		if j.Source.Path == "" {
			return invalid("%s source needs a path", j.Source.Type)
		}
	case "sql":
		if j.Source.Driver == "" || j.Source.Table == "" {
			return invalid("sql source needs a driver and a table")
		}
	case "wordpress":
		if j.Source.Driver == "" {
			return invalid("wordpress source needs a driver")
		}
	case "mongo":
		if j.Source.Database == "" || j.Source.Collection == "" {
			return invalid("mongo source needs a database and a collection")
		}
	case "":
		return invalid("source type is missing")
	default:
		return invalid("unknown source type %q", j.Source.Type)
	}

	separators := map[string]string{
		"delimiter": j.Source.Delimiter,
		"enclosure": j.Source.Enclosure,
		"comment":   j.Source.Comment,
	}
	if j.Source.Escape != nil {
		separators["escape"] = *j.Source.Escape
	}
	for name, value := range separators {
		if utf8.RuneCountInString(value) > 1 {
			return invalid("source %s must be a single character, got %q", name, value)
		}
	}

	switch j.Destination.Type {
	case "csv", "ndjson":
		if j.Destination.Path == "" {
			return invalid("%s destination needs a path", j.Destination.Type)
		}
	case "sql":
		if j.Destination.Driver == "" || j.Destination.Table == "" {
			return invalid("sql destination needs a driver and a table")
		}
	case "mongo":
		if j.Destination.Database == "" || j.Destination.Collection == "" {
			return invalid("mongo destination needs a database and a collection")
		}
	case "null", "debug":
	case "":
		return invalid("destination type is missing")
	default:
		return invalid("unknown destination type %q", j.Destination.Type)
	}

	seen := make(map[string]struct{}, len(j.Rename))
	for i, r := range j.Rename {
		if r.From == "" || r.To == "" {
			return invalid("rename entry %d needs both from and to", i+1)
		}
		if _, dup := seen[r.From]; dup {
			return invalid("field %q renamed twice", r.From)
		}
		seen[r.From] = struct{}{}
	}

	for i, t := range j.Transformers {
		if t.Type == "" {
			return invalid("transformer %d has no type", i+1)
		}
	}
	return nil
}

// RenameMap returns the rename list as old name -> new name.
func (j *Job) RenameMap() map[string]string {
	m := make(map[string]string, len(j.Rename))
	for _, r := range j.Rename {
		m[r.From] = r.To
	}
	return m
}

func invalid(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, v...))
}
