package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BartekS5/rowmigrate/pkg/logger"
	"github.com/BartekS5/rowmigrate/pkg/models"
)

type migratorState int

const (
	stateConfigured migratorState = iota
	stateRunning
	stateFinished
)

// Migrator moves rows page by page from a Source to a Destination,
// applying transformers and then field renames to every row.
type Migrator struct {
	source       Source
	destination  Destination
	fields       []string
	fieldMap     map[string]string
	transformers []Transformer
	perPage      int
	progress     bool
	dryRun       bool

	state migratorState
}

// Result summarises a finished run.
type Result struct {
	RunID    string
	Pages    int
	Rows     int
	Duration time.Duration
}

func NewMigrator() *Migrator {
	return &Migrator{}
}

func (m *Migrator) SetSource(source Source) *Migrator {
	m.source = source
	return m
}

func (m *Migrator) SetDestination(destination Destination) *Migrator {
	m.destination = destination
	return m
}

// SetFieldsToMigrate restricts the run to fields, named as the source names
// them. An empty list migrates every field the source reports.
func (m *Migrator) SetFieldsToMigrate(fields []string) *Migrator {
	m.fields = append([]string(nil), fields...)
	return m
}

// SetFieldMap renames fields (old -> new) on output, after transformers ran.
func (m *Migrator) SetFieldMap(fieldMap map[string]string) *Migrator {
	m.fieldMap = make(map[string]string, len(fieldMap))
	for k, v := range fieldMap {
		m.fieldMap[k] = v
	}
	return m
}

// AddTransformer appends t; transformers run in the order they were added.
func (m *Migrator) AddTransformer(t Transformer) *Migrator {
	m.transformers = append(m.transformers, t)
	return m
}

// SetPerPage sets the source's page size when the run starts. 0 keeps the
// source's own default.
func (m *Migrator) SetPerPage(perPage int) *Migrator {
	m.perPage = perPage
	return m
}

func (m *Migrator) WithProgress() *Migrator {
	m.progress = true
	return m
}

// WithDryRun extracts and transforms but never calls PutDataRows.
func (m *Migrator) WithDryRun() *Migrator {
	m.dryRun = true
	return m
}

// Migrate runs the migration to completion. Cancelling ctx stops the run
// after the page in progress; rows already delivered are not rolled back.
func (m *Migrator) Migrate(ctx context.Context) (*Result, error) {
	if m.state == stateRunning {
		return nil, ErrAlreadyRunning
	}
	if err := m.Validate(); err != nil {
		return nil, &StageError{Stage: StageConfigure, Err: err}
	}
	if m.perPage > 0 {
		if err := m.source.SetPerPage(m.perPage); err != nil {
			return nil, &StageError{Stage: StageConfigure, Err: err}
		}
	}

	m.state = stateRunning
	defer func() { m.state = stateFinished }()

	res := &Result{RunID: uuid.NewString()}
	log := logger.Get().With().Str("run_id", res.RunID).Logger()

	fields := m.effectiveFields()
	m.warnUnknownFields(&log, fields)

	totalPages := 0
	if m.progress {
		n, err := m.source.CountPages(ctx)
		if err != nil {
			return nil, &StageError{Stage: StageCount, Err: err}
		}
		totalPages = n
	}

	log.Info().Int("fields", len(fields)).Int("transformers", len(m.transformers)).Bool("dry_run", m.dryRun).
		Msg("Starting migration")
	startTime := time.Now()

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("page", page).Msg("Migration cancelled")
			return res, err
		}

		rows, err := m.source.GetDataRows(ctx, page, fields)
		if err != nil {
			log.Error().Err(err).Int("page", page).Msg("Extraction failed")
			return res, &StageError{Stage: StageExtract, Page: page, Err: err}
		}
		if len(rows) == 0 {
			log.Info().Msg("No more data to process.")
			break
		}

		if err := m.transformRows(rows); err != nil {
			log.Error().Err(err).Int("page", page).Msg("Transform failed")
			return res, &StageError{Stage: StageTransform, Page: page, Err: err}
		}
		m.renameFields(rows)

		if !m.dryRun {
			if err := m.destination.PutDataRows(ctx, rows); err != nil {
				log.Error().Err(err).Int("page", page).Msg("Loading failed")
				return res, &StageError{Stage: StageLoad, Page: page, Err: err}
			}
		} else {
			log.Info().Int("page", page).Msgf("[DRY RUN] Would load %d rows", len(rows))
		}

		res.Pages = page
		res.Rows += len(rows)
		if m.progress {
			m.reportProgress(&log, page, totalPages, res.Rows, startTime)
		}
	}

	if err := m.destination.FinishMigration(ctx); err != nil {
		return res, &StageError{Stage: StageFinish, Err: err}
	}

	res.Duration = time.Since(startTime)
	log.Info().Int("pages", res.Pages).Int("rows", res.Rows).Dur("duration", res.Duration).
		Msg("Migration finished successfully.")
	return res, nil
}

func (m *Migrator) effectiveFields() []string {
	if len(m.fields) > 0 {
		return m.fields
	}
	return m.source.GetFields()
}

func (m *Migrator) transformRows(rows []*models.DataRow) error {
	for i, row := range rows {
		for _, t := range m.transformers {
			if err := t.Transform(row); err != nil {
				return fmt.Errorf("%w: row %d: %w", ErrTransform, i+1, err)
			}
		}
	}
	return nil
}

func (m *Migrator) renameFields(rows []*models.DataRow) {
	if len(m.fieldMap) == 0 {
		return
	}
	for _, row := range rows {
		row.RenameFields(m.fieldMap)
	}
}

func (m *Migrator) reportProgress(log *zerolog.Logger, page, totalPages, rows int, startTime time.Time) {
	rate := 0.0
	if secs := time.Since(startTime).Seconds(); secs > 0 {
		rate = float64(rows) / secs
	}
	log.Info().Int("page", page).Int("pages", totalPages).Int("rows", rows).
		Msgf("Page %d/%d done. Total: %d. Rate: %.2f rows/sec.", page, totalPages, rows, rate)
}
