package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.APIRequest("ok")
	r.APIRequest("ok")
	r.APIRequest("circuit_open")
	r.APIRetry()
	r.BatchCommitted("CU", 50, 1200, 2)
	r.BatchCommitted("CU", 10, 240, 1)
	r.BatchFailed("CU")
	r.QuotaRemaining(420)
	r.FreshnessChecked("LA", 3)

	assert.InDelta(t, 2.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("circuit_open")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.apiRetries), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(r.batches.WithLabelValues("CU", "committed")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.batches.WithLabelValues("CU", "failed")), 1e-9)
	assert.InDelta(t, 60.0, testutil.ToFloat64(r.seriesUpdated.WithLabelValues("CU")), 1e-9)
	assert.InDelta(t, 1440.0, testutil.ToFloat64(r.observations.WithLabelValues("CU")), 1e-9)
	assert.InDelta(t, 3.0, testutil.ToFloat64(r.requestsUsed.WithLabelValues("CU")), 1e-9)
	assert.InDelta(t, 420.0, testutil.ToFloat64(r.quotaRemaining), 1e-9)
	assert.InDelta(t, 3.0, testutil.ToFloat64(r.sentinelsChanged.WithLabelValues("LA")), 1e-9)
}

func TestRecorder_PrivateRegistry(t *testing.T) {
	a, b := New(), New()
	a.APIRetry()

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.apiRetries), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.apiRetries), 1e-9)
}

func TestRecorder_Lint(t *testing.T) {
	r := New()
	r.APIRequest("ok")
	r.BatchCommitted("CU", 1, 1, 1)

	problems, err := testutil.GatherAndLint(r.Registry())
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.QuotaRemaining(12)

	path := filepath.Join(t.TempDir(), "textfile", "collector.prom")
	require.NoError(t, r.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "collector_quota_remaining 12")
	assert.True(t, strings.Contains(out, "collector_last_run_timestamp_seconds"))
}

func TestRecorder_CollectAndCompare(t *testing.T) {
	r := New()
	r.FreshnessChecked("CU", 0)
	r.FreshnessChecked("CU", 2)

	expected := `
# HELP collector_freshness_checks_total Sentinel freshness checks by survey
# TYPE collector_freshness_checks_total counter
collector_freshness_checks_total{survey="CU"} 2
`
	require.NoError(t, testutil.CollectAndCompare(r.freshnessChecks, strings.NewReader(expected)))
}
