// Package metrics collects per-run counters and writes them to a
// node-exporter textfile, since a batch job has no endpoint to scrape.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec
	apiRequests *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// New returns a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubsync_records_total",
			Help: "Records processed, by entity and outcome",
		}, []string{"entity", "outcome"}),
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubsync_api_requests_total",
			Help: "HubSpot API requests, by operation and HTTP status",
		}, []string{"operation", "status"}),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubsync_run_duration_seconds",
			Help: "Duration of the last run of each phase",
		}, []string{"phase"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each phase",
		}, []string{"phase"}),
	}
}

// Record adds n records with outcome for entity.
func (r *Recorder) Record(entity, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.records.WithLabelValues(entity, outcome).Add(float64(n))
}

// APIRequest counts one HubSpot call. A status of 0 means no response was
// received.
func (r *Recorder) APIRequest(operation string, status int) {
	if r == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "none"
	}
	r.apiRequests.WithLabelValues(operation, label).Inc()
}

// PhaseDone records the duration of a phase and, when ok, its completion
// time.
func (r *Recorder) PhaseDone(phase string, d time.Duration, ok bool) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(phase).Set(d.Seconds())
	if ok {
		r.lastSuccess.WithLabelValues(phase).SetToCurrentTime()
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes the metrics in text format to path, atomically.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
