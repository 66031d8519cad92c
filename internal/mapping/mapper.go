// Package mapping turns source records into CRM property sets.
//
// A Table declares, per source column, the target property and the coercion
// kind. Tables are validated when a Mapper is built, so an unknown target or
// kind stops the run before any record is read.
package mapping

import (
	"errors"
	"strings"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// Mode selects which critical fields IsValid requires.
type Mode int

const (
	ModeUpdate Mode = iota
	ModeInsert
)

// requiredForInsert must be present to create a contact.
var requiredForInsert = []string{"firstname", "lastname", "email"}

// Mapper applies one validated Table.
type Mapper struct {
	table       Table
	countryCode string
}

// New resolves and validates table.
func New(table Table) (*Mapper, error) {
	resolved := table.Resolve()
	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{table: resolved, countryCode: DefaultCountryCode}, nil
}

// Table returns the resolved table.
func (m *Mapper) Table() Table {
	return m.table
}

// Map derives the property set of one record. Null and blank source values
// are omitted, as are values that fail coercion (with a warning). A record
// whose external key is missing or malformed maps to an empty set.
func (m *Mapper) Map(rec domain.SourceRecord) domain.MappedProperties {
	out := domain.MappedProperties{}
	if rec == nil {
		logging.Warn().Msg("source record is not a mapping, nothing to map")
		return out
	}

	key, ok := m.externalKey(rec)
	if !ok {
		return out
	}

	for _, r := range m.table.Rules {
		if r.Target == domain.ExternalKeyProperty {
			out[r.Target] = key
			continue
		}
		v, present := rec[r.Source]
		if !present {
			continue
		}
		raw, ok := stringify(v)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}

		value, err := m.coerce(r, v, raw)
		if errors.Is(err, errTruncated) {
			logging.Warn().Str("field", r.Target).Str("key", logging.MaskKey(key)).Msg("text truncated to maximum length")
			err = nil
		}
		if err != nil {
			logging.Warn().Err(err).Str("field", r.Target).Str("kind", r.Kind.String()).Str("key", logging.MaskKey(key)).Msg("value dropped")
			continue
		}
		out[r.Target] = value
	}

	logging.Debug().Int("mapped", len(out)).Int("source", len(rec)).Msg("record mapped")
	return out
}

func (m *Mapper) externalKey(rec domain.SourceRecord) (string, bool) {
	source := domain.ExternalKeyProperty
	for _, r := range m.table.Rules {
		if r.Target == domain.ExternalKeyProperty {
			source = r.Source
			break
		}
	}
	raw, ok := stringify(rec[source])
	key := domain.NormalizeKey(raw)
	if !ok || key == "" {
		logging.Warn().Msg("record without external key skipped")
		return "", false
	}
	if !domain.ValidKey(key) {
		logging.Warn().Str("key", logging.MaskKey(key)).Msg("record with malformed external key skipped")
		return "", false
	}
	return key, true
}

func (m *Mapper) coerce(r Rule, v any, raw string) (string, error) {
	switch r.Kind {
	case KindBoolean:
		return coerceBoolean(raw), nil
	case KindNumber:
		return coerceNumber(raw)
	case KindDate:
		return coerceDate(v)
	case KindPhone:
		return coercePhone(raw, m.countryCode)
	case KindEmail:
		return coerceEmail(raw)
	case KindSelect:
		return coerceSelect(r.Target, raw), nil
	default:
		return coerceText(raw)
	}
}

// Validate reports the first missing critical field as an
// *apperr.ValidationError.
func Validate(props domain.MappedProperties, mode Mode) error {
	key := props[domain.ExternalKeyProperty]
	if key == "" {
		return apperr.NewValidationError(domain.ExternalKeyProperty, "missing")
	}
	if !domain.ValidKey(key) {
		return apperr.NewValidationError(domain.ExternalKeyProperty, "must be 8 to 12 digits, got "+logging.MaskKey(key))
	}
	if mode == ModeInsert {
		for _, f := range requiredForInsert {
			if strings.TrimSpace(props[f]) == "" {
				return apperr.NewValidationError(f, "required to create a contact")
			}
		}
	}
	return nil
}

// IsValid reports whether props carries the critical fields for mode,
// logging the reason when it does not.
func IsValid(props domain.MappedProperties, mode Mode) bool {
	if err := Validate(props, mode); err != nil {
		logging.Warn().Err(err).Str("key", logging.MaskKey(props[domain.ExternalKeyProperty])).Msg("record skipped")
		return false
	}
	return true
}
