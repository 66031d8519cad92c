package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/hubsync/internal/metrics"
)

func TestRecordsAndRequests(t *testing.T) {
	r := metrics.New()
	r.Record("contacts", "created", 3)
	r.Record("contacts", "created", 2)
	r.Record("contacts", "conflict", 1)
	r.Record("contacts", "invalid", 0)
	r.APIRequest("search", 200)
	r.APIRequest("search", 200)
	r.APIRequest("create", 0)

	expected := `
# HELP hubsync_records_total Records processed, by entity and outcome
# TYPE hubsync_records_total counter
hubsync_records_total{entity="contacts",outcome="conflict"} 1
hubsync_records_total{entity="contacts",outcome="created"} 5
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "hubsync_records_total"))

	expected = `
# HELP hubsync_api_requests_total HubSpot API requests, by operation and HTTP status
# TYPE hubsync_api_requests_total counter
hubsync_api_requests_total{operation="create",status="none"} 1
hubsync_api_requests_total{operation="search",status="200"} 2
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "hubsync_api_requests_total"))
}

func TestPhaseDone(t *testing.T) {
	r := metrics.New()
	r.PhaseDone("insert", 1500*time.Millisecond, false)

	n, err := testutil.GatherAndCount(r.Registry(), "hubsync_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	r.PhaseDone("insert", 2*time.Second, true)
	n, err = testutil.GatherAndCount(r.Registry(), "hubsync_run_duration_seconds", "hubsync_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *metrics.Recorder
	r.Record("contacts", "created", 1)
	r.APIRequest("search", 200)
	r.PhaseDone("insert", time.Second, true)
	assert.NoError(t, r.WriteFile("ignored.prom"))
}

func TestWriteFile(t *testing.T) {
	r := metrics.New()
	r.Record("contacts", "updated", 4)
	path := filepath.Join(t.TempDir(), "hubsync.prom")

	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `hubsync_records_total{entity="contacts",outcome="updated"} 4`)
}
