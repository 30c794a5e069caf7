package etl

import (
	"github.com/rs/zerolog"
)

// Validate checks the migrator's configuration before a run.
func (m *Migrator) Validate() error {
	if m.source == nil {
		return configError("no source set")
	}
	if m.destination == nil {
		return configError("no destination set")
	}
	if m.perPage < 0 {
		return configError("per page must not be negative, got %d", m.perPage)
	}

	seen := make(map[string]struct{}, len(m.fields))
	for i, f := range m.fields {
		if f == "" {
			return configError("field %d in fields to migrate is empty", i+1)
		}
		if _, dup := seen[f]; dup {
			return configError("field %q listed twice in fields to migrate", f)
		}
		seen[f] = struct{}{}
	}

	for from, to := range m.fieldMap {
		if from == "" || to == "" {
			return configError("field map entry %q -> %q has an empty name", from, to)
		}
	}

	for i, t := range m.transformers {
		if t == nil {
			return configError("transformer %d is nil", i+1)
		}
	}
	return nil
}

// warnUnknownFields logs configured fields the source does not advertise.
// Some sources discover fields from a sample, so this is not an error.
func (m *Migrator) warnUnknownFields(log *zerolog.Logger, fields []string) {
	if len(m.fields) == 0 {
		return
	}
	known := newFieldSet(m.source.GetFields())
	for _, f := range fields {
		if !known.has(f) {
			log.Warn().Str("field", f).Msg("Field is not reported by the source")
		}
	}
}
