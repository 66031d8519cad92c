package syncer

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/johnwards/hubsync/internal/metrics"
)

// Record outcomes, used as the outcome metrics label.
const (
	OutcomeCreated       = "created"
	OutcomeUpdated       = "updated"
	OutcomeAlreadyExists = "already_exists"
	OutcomeNotFound      = "not_found"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
	OutcomeConflict      = "conflict"
)

// Stats counts the outcomes of one run. Counters only grow.
type Stats struct {
	Total         int
	Processed     int
	Created       int
	Updated       int
	AlreadyExists int
	NotFound      int
	Invalid       int
	Errors        int
	Conflicts     int
	// ErrorDetails holds one line per error, in the order they happened.
	ErrorDetails []string
}

func (s *Stats) addError(key string, err error) {
	s.Errors++
	s.ErrorDetails = append(s.ErrorDetails, fmt.Sprintf("key %s: %v", key, err))
}

// MarshalZerologObject logs the counters.
func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("total", s.Total).
		Int("processed", s.Processed).
		Int("created", s.Created).
		Int("updated", s.Updated).
		Int("already_exists", s.AlreadyExists).
		Int("not_found", s.NotFound).
		Int("invalid", s.Invalid).
		Int("errors", s.Errors).
		Int("conflicts", s.Conflicts)
}

// Export adds the counters to r under entity.
func (s *Stats) Export(r *metrics.Recorder, entity string) {
	r.Record(entity, OutcomeCreated, s.Created)
	r.Record(entity, OutcomeUpdated, s.Updated)
	r.Record(entity, OutcomeAlreadyExists, s.AlreadyExists)
	r.Record(entity, OutcomeNotFound, s.NotFound)
	r.Record(entity, OutcomeInvalid, s.Invalid)
	r.Record(entity, OutcomeError, s.Errors)
	r.Record(entity, OutcomeConflict, s.Conflicts)
}
