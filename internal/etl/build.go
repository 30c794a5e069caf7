package etl

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/rowmigrate/internal/config"
	"github.com/BartekS5/rowmigrate/pkg/database"
)

// Plan is a job with its connections open and its Migrator wired.
type Plan struct {
	Migrator    *Migrator
	Source      Source
	Destination Destination

	closers []func() error
}

// Close releases the source and every connection the plan opened.
func (p *Plan) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Build opens job's source and destination and configures a Migrator for
// it. env supplies connection strings the job leaves empty.
func Build(ctx context.Context, job *config.Job, env *config.Config) (*Plan, error) {
	p := &Plan{}

	src, err := p.openSource(ctx, job.Source, env)
	if err != nil {
		p.Close()
		return nil, &StageError{Stage: StageOpen, Err: err}
	}
	p.Source = src

	dst, err := p.openDestination(job.Destination, env)
	if err != nil {
		p.Close()
		return nil, &StageError{Stage: StageOpen, Err: err}
	}
	p.Destination = dst

	m := NewMigrator().
		SetSource(src).
		SetDestination(dst).
		SetFieldsToMigrate(job.Fields).
		SetFieldMap(job.RenameMap()).
		SetPerPage(job.PerPage)
	for _, tc := range job.Transformers {
		t, err := NewTransformer(TransformerSpec{Type: tc.Type, Field: tc.Field, Target: tc.Target, Value: tc.Value})
		if err != nil {
			p.Close()
			return nil, &StageError{Stage: StageConfigure, Err: err}
		}
		m.AddTransformer(t)
	}
	if job.Progress {
		m.WithProgress()
	}
	if job.DryRun {
		m.WithDryRun()
	}
	p.Migrator = m
	return p, nil
}

// OpenSource opens only the source of a job. Close the returned plan when done.
func OpenSource(ctx context.Context, cfg config.SourceConfig, env *config.Config) (*Plan, error) {
	p := &Plan{}
	src, err := p.openSource(ctx, cfg, env)
	if err != nil {
		p.Close()
		return nil, &StageError{Stage: StageOpen, Err: err}
	}
	p.Source = src
	return p, nil
}

func (p *Plan) openSource(ctx context.Context, cfg config.SourceConfig, env *config.Config) (Source, error) {
	switch cfg.Type {
	case "csv":
		s, err := NewCSVSource(cfg.Path)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, s.Close)
		if cfg.Delimiter != "" {
			if err := s.SetDelimiter(firstRune(cfg.Delimiter)); err != nil {
				return nil, err
			}
		}
		if cfg.Enclosure != "" {
			if err := s.SetEnclosure(firstRune(cfg.Enclosure)); err != nil {
				return nil, err
			}
		}
		if cfg.Escape != nil {
			if err := s.SetEscape(firstRune(*cfg.Escape)); err != nil {
				return nil, err
			}
		}
		if cfg.Comment != "" {
			if err := s.SetComment(firstRune(cfg.Comment)); err != nil {
				return nil, err
			}
		}
		if cfg.LazyQuotes {
			if err := s.SetLazyQuotes(true); err != nil {
				return nil, err
			}
		}
		if cfg.TrimLeadingSpace {
			if err := s.SetTrimLeadingSpace(true); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "ndjson":
		s, err := NewNDJSONSource(cfg.Path)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, s.Close)
		return s, nil

	case "sql":
		db, err := p.connectSQL(cfg.Driver, cfg.DSN, env)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLTableSource(ctx, db, cfg.Driver, cfg.Table)
		if err != nil {
			return nil, err
		}
		return s.SetOrderBy(cfg.OrderBy), nil

	case "wordpress":
		db, err := p.connectSQL(cfg.Driver, cfg.DSN, env)
		if err != nil {
			return nil, err
		}
		s, err := NewWordPressPostSource(ctx, db, cfg.Driver, cfg.PostType)
		if err != nil {
			return nil, err
		}
		if cfg.Prefix != "" {
			if err := s.SetTablePrefix(ctx, cfg.Prefix); err != nil {
				return nil, err
			}
		}
		if len(cfg.Terms) > 0 {
			s.WithTerms(cfg.Terms...)
		}
		if cfg.TermsSeparator != "" {
			s.SetTermsSeparator(cfg.TermsSeparator)
		}
		return s, nil

	case "mongo":
		client, err := p.connectMongo(cfg.URI, env)
		if err != nil {
			return nil, err
		}
		s, err := NewMongoSource(ctx, client.Database(cfg.Database).Collection(cfg.Collection))
		if err != nil {
			return nil, err
		}
		return s.SetSortField(cfg.SortField), nil
	}
	return nil, configError("unknown source type %q", cfg.Type)
}

// firstRune returns the first character of s, or 0 for an empty string.
func firstRune(s string) rune {
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func (p *Plan) openDestination(cfg config.DestinationConfig, env *config.Config) (Destination, error) {
	switch cfg.Type {
	case "csv":
		return NewCSVDestination(cfg.Path, cfg.Fields), nil
	case "ndjson":
		return NewNDJSONDestination(cfg.Path), nil
	case "null":
		return &NullDestination{}, nil
	case "debug":
		return NewDebugDestination(nil), nil

	case "sql":
		db, err := p.connectSQL(cfg.Driver, cfg.DSN, env)
		if err != nil {
			return nil, err
		}
		d, err := NewSQLDestination(db, cfg.Driver, cfg.Table)
		if err != nil {
			return nil, err
		}
		return d.SetKeyField(cfg.KeyField), nil

	case "mongo":
		client, err := p.connectMongo(cfg.URI, env)
		if err != nil {
			return nil, err
		}
		coll := client.Database(cfg.Database).Collection(cfg.Collection)
		return NewMongoDestination(coll).SetKeyField(cfg.KeyField), nil
	}
	return nil, configError("unknown destination type %q", cfg.Type)
}

func (p *Plan) connectSQL(driver, dsn string, env *config.Config) (*sql.DB, error) {
	dsn, err := env.RequireSQL(dsn)
	if err != nil {
		return nil, configError("%v", err)
	}
	db, err := database.ConnectSQL(driver, dsn)
	if err != nil {
		return nil, openError("SQL database", driver, err)
	}
	p.closers = append(p.closers, db.Close)
	return db, nil
}

func (p *Plan) connectMongo(uri string, env *config.Config) (*mongo.Client, error) {
	uri, err := env.RequireMongo(uri)
	if err != nil {
		return nil, configError("%v", err)
	}
	client, err := database.ConnectMongo(uri)
	if err != nil {
		return nil, openError("MongoDB", "client", err)
	}
	p.closers = append(p.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Disconnect(ctx)
	})
	return client, nil
}
