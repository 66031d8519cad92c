// Package syncer pushes source records to the CRM. Each record is mapped,
// validated and looked up by its external key; the lookup decides between
// create and update. Records are processed one at a time, in source order,
// with a fixed delay between write calls.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot"
	"github.com/johnwards/hubsync/internal/identity"
	"github.com/johnwards/hubsync/internal/logging"
	"github.com/johnwards/hubsync/internal/mapping"
	"github.com/johnwards/hubsync/internal/metrics"
	"github.com/johnwards/hubsync/internal/report"
)

// ProgressEvery is how often, in records, a progress line is logged.
const ProgressEvery = 100

// DefaultUpdateBatchSize is the number of updates between batch pauses.
const DefaultUpdateBatchSize = 50

// Writer is the part of the CRM API that writes contacts.
type Writer interface {
	Create(ctx context.Context, objectType string, in domain.CreateInput) (*domain.Object, error)
	BatchCreate(ctx context.Context, objectType, keyProperty string, inputs []domain.CreateInput) domain.BatchResult
	Update(ctx context.Context, objectType, id string, props map[string]string) (*domain.Object, error)
}

// Options tunes an Orchestrator.
type Options struct {
	// BatchSize is the number of creates per batch request, capped at
	// hubspot.MaxBatchSize.
	BatchSize int
	// UpdateBatchSize is the number of updates between two BatchPause waits.
	UpdateBatchSize int
	// WriteDelay is the minimum time between two write calls.
	WriteDelay time.Duration
	BatchPause time.Duration
	// DryRun maps and looks records up but only logs the writes.
	DryRun bool
	// Report receives conflicts and successful creates. May be nil.
	Report  *report.Writer
	Metrics *metrics.Recorder
	RunID   string
}

// Orchestrator runs insert and update passes over source records.
type Orchestrator struct {
	writer   Writer
	resolver *identity.Resolver
	opts     Options
	pacer    *rate.Limiter
	now      func() time.Time
}

// New returns an Orchestrator. A missing RunID is generated.
func New(w Writer, r *identity.Resolver, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 || opts.BatchSize > hubspot.MaxBatchSize {
		opts.BatchSize = hubspot.MaxBatchSize
	}
	if opts.UpdateBatchSize <= 0 {
		opts.UpdateBatchSize = DefaultUpdateBatchSize
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Orchestrator{
		writer:   w,
		resolver: r,
		opts:     opts,
		pacer:    rate.NewLimiter(rate.Every(opts.WriteDelay), 1),
		now:      time.Now,
	}
}

// RunID identifies this run in logs.
func (o *Orchestrator) RunID() string {
	return o.opts.RunID
}

type pending struct {
	key   string
	props domain.MappedProperties
}

// Insert creates the records that do not exist yet. Existing keys are
// counted as already_exists and left untouched, so running it twice creates
// nothing the second time. Creates are sent in batches; when a batch fails,
// its records are retried one by one. The returned error is non-nil only when
// ctx ends the run early.
func (o *Orchestrator) Insert(ctx context.Context, m *mapping.Mapper, records []domain.SourceRecord) (*Stats, error) {
	start := time.Now()
	log := o.logger("insert")
	st := &Stats{Total: len(records)}
	log.Info().Int("records", len(records)).Bool("dry_run", o.opts.DryRun).Msg("insert run started")

	seen := make(map[string]bool)
	queue := make([]pending, 0, o.opts.BatchSize)
	batch := 0
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		st.Processed++
		if p, ok := o.prepareCreate(ctx, &log, m, rec, seen, st); ok {
			queue = append(queue, p)
		}
		if len(queue) == o.opts.BatchSize {
			batch++
			o.flush(ctx, &log, batch, queue, st)
			queue = queue[:0]
		}
		o.progress(&log, i+1, st)
	}
	if len(queue) > 0 && ctx.Err() == nil {
		batch++
		o.flush(ctx, &log, batch, queue, st)
	}

	err := ctx.Err()
	o.finish(&log, "insert", st, start, err)
	if conflicts, successes := o.opts.Report.Paths(); conflicts != "" {
		log.Info().Str("conflicts", conflicts).Str("successes", successes).Msg("reports written")
	}
	return st, err
}

// prepareCreate maps and looks up one record, returning it when it should
// be created.
func (o *Orchestrator) prepareCreate(ctx context.Context, log *zerolog.Logger, m *mapping.Mapper, rec domain.SourceRecord, seen map[string]bool, st *Stats) (pending, bool) {
	props := m.Map(rec)
	key := props[domain.ExternalKeyProperty]
	masked := logging.MaskKey(key)

	if err := mapping.Validate(props, mapping.ModeInsert); err != nil {
		st.Invalid++
		log.Warn().Err(err).Str("key", masked).Msg("record skipped")
		return pending{}, false
	}
	if seen[key] {
		st.AlreadyExists++
		log.Debug().Str("key", masked).Msg("key repeated in source, skipped")
		return pending{}, false
	}

	entity, err := o.resolver.Find(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			st.addError(masked, err)
			log.Error().Err(err).Str("key", masked).Msg("lookup failed")
		}
		return pending{}, false
	}
	seen[key] = true
	if entity != nil {
		st.AlreadyExists++
		log.Debug().Str("key", masked).Str("id", entity.ID).Msg("contact already exists")
		return pending{}, false
	}
	return pending{key: key, props: props}, true
}

// flush creates the queued records.
func (o *Orchestrator) flush(ctx context.Context, log *zerolog.Logger, batch int, queue []pending, st *Stats) {
	if o.opts.DryRun {
		for _, p := range queue {
			st.Created++
			log.Info().Str("key", logging.MaskKey(p.key)).Int("properties", len(p.props)).Msg("dry run: would create contact")
		}
		return
	}

	byKey := make(map[string]pending, len(queue))
	inputs := make([]domain.CreateInput, 0, len(queue))
	for _, p := range queue {
		byKey[p.key] = p
		inputs = append(inputs, domain.CreateInput{Properties: p.props.Clone()})
	}

	if err := o.pacer.Wait(ctx); err != nil {
		return
	}
	res := o.writer.BatchCreate(ctx, domain.ObjectContacts, domain.ExternalKeyProperty, inputs)
	for _, obj := range res.Succeeded {
		key := obj.Properties[domain.ExternalKeyProperty]
		o.created(log, byKey[key], key, obj, st)
	}
	if res.OK() {
		log.Info().Int("batch", batch).Int("created", len(res.Succeeded)).Object("stats", st).Msg("batch created")
		return
	}

	log.Warn().Err(res.Failed[0].Reason).
		Int("batch", batch).
		Int("failed", len(res.Failed)).
		Msg("batch create failed, retrying records one by one")
	for _, f := range res.Failed {
		if ctx.Err() != nil {
			return
		}
		key := f.Input.Properties[domain.ExternalKeyProperty]
		o.createOne(ctx, log, pending{key: key, props: f.Input.Properties}, st)
	}
	log.Info().Int("batch", batch).Object("stats", st).Msg("batch finished")
}

func (o *Orchestrator) createOne(ctx context.Context, log *zerolog.Logger, p pending, st *Stats) {
	masked := logging.MaskKey(p.key)
	if err := o.pacer.Wait(ctx); err != nil {
		return
	}
	obj, err := o.writer.Create(ctx, domain.ObjectContacts, domain.CreateInput{Properties: p.props.Clone()})
	var conflict *apperr.ConflictError
	switch {
	case err == nil:
		o.created(log, p, p.key, obj, st)
	case errors.As(err, &conflict):
		st.Conflicts++
		log.Warn().Str("key", masked).Str("existing_id", conflict.ExistingID).Msg("create conflicts with an existing contact")
		if werr := o.opts.Report.Conflict(report.Conflict{
			Cedula:         p.key,
			Email:          p.props["email"],
			FirstName:      p.props["firstname"],
			LastName:       p.props["lastname"],
			NumeroAsociado: p.props["numero_asociado"],
			ExistingID:     conflict.ExistingID,
			Message:        conflict.Message,
			At:             o.now(),
		}); werr != nil {
			log.Warn().Err(werr).Msg("conflict report write failed")
		}
	case ctx.Err() != nil:
		// stopping; the record is neither created nor an error
	default:
		st.addError(masked, err)
		log.Error().Err(err).Str("key", masked).Msg("create failed")
	}
}

func (o *Orchestrator) created(log *zerolog.Logger, p pending, key string, obj *domain.Object, st *Stats) {
	st.Created++
	email := obj.Properties["email"]
	if email == "" {
		email = p.props["email"]
	}
	log.Debug().Str("key", logging.MaskKey(key)).Str("id", obj.ID).Msg("contact created")
	if err := o.opts.Report.Success(report.Success{Cedula: key, HubSpotID: obj.ID, Email: email, At: o.now()}); err != nil {
		log.Warn().Err(err).Msg("success report write failed")
	}
}

// Update patches the records that exist. Unknown keys are counted as
// not_found; updates are never batched. A pause of BatchPause separates each
// group of UpdateBatchSize records. The returned error is non-nil only when
// ctx ends the run early.
func (o *Orchestrator) Update(ctx context.Context, m *mapping.Mapper, records []domain.SourceRecord) (*Stats, error) {
	start := time.Now()
	log := o.logger("update")
	st := &Stats{Total: len(records)}
	log.Info().Int("records", len(records)).Bool("dry_run", o.opts.DryRun).Msg("update run started")

	pause := rate.NewLimiter(rate.Every(o.opts.BatchPause), 1)
	if o.opts.DryRun {
		pause.SetLimit(rate.Inf)
	}

	var err error
	size := o.opts.UpdateBatchSize
loop:
	for first := 0; first < len(records); first += size {
		if err = pause.Wait(ctx); err != nil {
			break
		}
		last := min(first+size, len(records))
		for i := first; i < last; i++ {
			if err = ctx.Err(); err != nil {
				break loop
			}
			st.Processed++
			o.updateOne(ctx, &log, m, records[i], st)
			o.progress(&log, i+1, st)
		}
		log.Info().Int("batch", first/size+1).Object("stats", st).Msg("update batch finished")
	}
	if err == nil {
		err = ctx.Err()
	}

	o.finish(&log, "update", st, start, err)
	return st, err
}

func (o *Orchestrator) updateOne(ctx context.Context, log *zerolog.Logger, m *mapping.Mapper, rec domain.SourceRecord, st *Stats) {
	props := m.Map(rec)
	key := props[domain.ExternalKeyProperty]
	masked := logging.MaskKey(key)

	if err := mapping.Validate(props, mapping.ModeUpdate); err != nil {
		st.Invalid++
		log.Warn().Err(err).Str("key", masked).Msg("record skipped")
		return
	}

	entity, err := o.resolver.Find(ctx, key)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			st.addError(masked, err)
			log.Error().Err(err).Str("key", masked).Msg("lookup failed")
		}
		return
	case entity == nil:
		st.NotFound++
		log.Debug().Str("key", masked).Msg("contact not found, nothing to update")
		return
	}

	if o.opts.DryRun {
		st.Updated++
		log.Info().Str("key", masked).Str("id", entity.ID).Int("properties", len(props)).Msg("dry run: would update contact")
		return
	}

	if err := o.pacer.Wait(ctx); err != nil {
		return
	}
	if _, err := o.writer.Update(ctx, domain.ObjectContacts, entity.ID, props.Clone()); err != nil {
		if ctx.Err() == nil {
			st.addError(masked, err)
			log.Error().Err(err).Str("key", masked).Str("id", entity.ID).Msg("update failed")
		}
		return
	}
	st.Updated++
	log.Debug().Str("key", masked).Str("id", entity.ID).Msg("contact updated")
}

func (o *Orchestrator) logger(phase string) zerolog.Logger {
	return logging.With().Str("run_id", o.opts.RunID).Str("phase", phase).Logger()
}

func (o *Orchestrator) progress(log *zerolog.Logger, done int, st *Stats) {
	if done%ProgressEvery != 0 {
		return
	}
	log.Info().Int("done", done).Int("total", st.Total).Object("stats", st).Msg("progress")
}

func (o *Orchestrator) finish(log *zerolog.Logger, phase string, st *Stats, start time.Time, err error) {
	elapsed := time.Since(start)
	st.Export(o.opts.Metrics, domain.ObjectContacts)
	o.opts.Metrics.PhaseDone(phase, elapsed, err == nil)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Object("stats", st).Dur("elapsed", elapsed).Msg(phase + " run finished")
	for _, d := range st.ErrorDetails {
		log.Debug().Str("detail", d).Msg("error detail")
	}
}
