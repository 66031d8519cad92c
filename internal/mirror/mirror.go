// Package mirror copies CRM data into relational tables: deals, tickets and
// contacts with their discovered properties, then owners and the deal and
// ticket pipelines. Every table is fully replaced on each run.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnwards/hubsync/internal/discovery"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
	"github.com/johnwards/hubsync/internal/metrics"
	"github.com/johnwards/hubsync/internal/tablesync"
)

const (
	// PageSize is the number of objects requested per page.
	PageSize = 100
	// MaxPropertiesPerRequest is the largest property list sent in one
	// request; longer lists are split into PropertyBatchSize groups.
	MaxPropertiesPerRequest = 100
	PropertyBatchSize       = 80
)

// Client is the part of the CRM API the mirror reads.
type Client interface {
	discovery.Client
	ListObjects(ctx context.Context, objectType string, opts domain.ListOpts) (*domain.ObjectPage, error)
	ListOwners(ctx context.Context) ([]domain.Owner, error)
	ListPipelines(ctx context.Context, objectType string) ([]domain.Pipeline, error)
}

// Sink stores a record set in a table.
type Sink interface {
	Sync(ctx context.Context, rows []domain.Row, table string) (tablesync.Result, error)
}

// Outcome is the result of one mirrored table.
type Outcome struct {
	Step   string
	Result tablesync.Result
	Err    error
}

// Mirror runs the read path.
type Mirror struct {
	client     Client
	discoverer *discovery.Discoverer
	sink       Sink
	metrics    *metrics.Recorder
}

// New returns a Mirror. rec may be nil.
func New(client Client, d *discovery.Discoverer, sink Sink, rec *metrics.Recorder) *Mirror {
	return &Mirror{client: client, discoverer: d, sink: sink, metrics: rec}
}

type step struct {
	name  string
	table string
	fetch func(context.Context) ([]domain.Row, error)
}

func (m *Mirror) steps() []step {
	return []step{
		{domain.ObjectDeals, tablesync.TableDeals, m.entities(domain.ObjectDeals)},
		{domain.ObjectTickets, tablesync.TableTickets, m.entities(domain.ObjectTickets)},
		{domain.ObjectContacts, tablesync.TableContacts, m.entities(domain.ObjectContacts)},
		{"owners", tablesync.TableOwners, m.owners},
		{"ticket_pipelines", tablesync.TableTicketsPipeline, m.pipelines(domain.ObjectTickets)},
		{"deal_pipelines", tablesync.TableDealsPipeline, m.pipelines(domain.ObjectDeals)},
	}
}

// Run mirrors every table in order. A failing table is logged and the run
// moves on to the next one; the returned error joins every failure.
// Cancellation stops the run immediately.
func (m *Mirror) Run(ctx context.Context) ([]Outcome, error) {
	start := time.Now()
	var (
		outcomes []Outcome
		errs     []error
	)
	for _, s := range m.steps() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out := m.runStep(ctx, s)
		outcomes = append(outcomes, out)
		if out.Err != nil {
			errs = append(errs, out.Err)
		}
	}

	err := errors.Join(errs...)
	m.metrics.PhaseDone("mirror", time.Since(start), err == nil)
	logging.Info().
		Int("tables", len(outcomes)).
		Int("failed", len(errs)).
		Dur("elapsed", time.Since(start)).
		Msg("mirror finished")
	return outcomes, err
}

func (m *Mirror) runStep(ctx context.Context, s step) Outcome {
	logging.Info().Str("step", s.name).Str("table", s.table).Msg("mirroring")
	rows, err := s.fetch(ctx)
	if err != nil {
		logging.Error().Err(err).Str("step", s.name).Msg("fetch failed")
		return Outcome{Step: s.name, Err: fmt.Errorf("%s: %w", s.name, err)}
	}
	res, err := m.sink.Sync(ctx, rows, s.table)
	if err != nil {
		logging.Error().Err(err).Str("step", s.name).Str("table", s.table).Msg("table sync failed")
		return Outcome{Step: s.name, Err: fmt.Errorf("%s: %w", s.name, err)}
	}
	m.metrics.Record(s.name, "mirrored", res.Rows)
	m.metrics.Record(s.name, "skipped", res.Skipped)
	return Outcome{Step: s.name, Result: res}
}

func (m *Mirror) entities(objectType string) func(context.Context) ([]domain.Row, error) {
	return func(ctx context.Context) ([]domain.Row, error) {
		res, err := m.discoverer.DiscoverOrFallback(ctx, objectType)
		if err != nil {
			return nil, err
		}
		objs, err := FetchAll(ctx, m.client, objectType, res.Properties)
		if err != nil {
			return nil, err
		}
		logging.Info().
			Str("object_type", objectType).
			Int("objects", len(objs)).
			Int("properties", len(res.Properties)).
			Bool("fallback", res.Fallback).
			Msg("objects fetched")
		return EntityRows(objectType, objs), nil
	}
}

func (m *Mirror) owners(ctx context.Context) ([]domain.Row, error) {
	owners, err := m.client.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	return OwnerRows(owners), nil
}

func (m *Mirror) pipelines(objectType string) func(context.Context) ([]domain.Row, error) {
	return func(ctx context.Context) ([]domain.Row, error) {
		pipelines, err := m.client.ListPipelines(ctx, objectType)
		if err != nil {
			return nil, err
		}
		return PipelineRows(pipelines), nil
	}
}
