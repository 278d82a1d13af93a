// Package metrics records collector counters on a private Prometheus
// registry. A snapshot can be written in the node-exporter textfile format
// at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

const namespace = "collector"

// Recorder implements driven.Metrics.
type Recorder struct {
	registry *prometheus.Registry

	apiRequests       *prometheus.CounterVec
	apiRetries        prometheus.Counter
	batches           *prometheus.CounterVec
	seriesUpdated     *prometheus.CounterVec
	observations      *prometheus.CounterVec
	requestsUsed      *prometheus.CounterVec
	quotaRemaining    prometheus.Gauge
	freshnessChecks   *prometheus.CounterVec
	sentinelsChanged  *prometheus.GaugeVec
	lastRun prometheus.Gauge
}

var _ driven.Metrics = (*Recorder)(nil)

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Logical upstream API calls by outcome",
		}, []string{"outcome"}),
		apiRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Transport retries against the upstream API",
		}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Sync batches by survey and result",
		}, []string{"survey", "result"}),
		seriesUpdated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_updated_total",
			Help:      "Series fetched and committed",
		}, []string{"survey"}),
		observations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_written_total",
			Help:      "Observations upserted",
		}, []string{"survey"}),
		requestsUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_used_total",
			Help:      "Quota requests consumed by committed batches",
		}, []string{"survey"}),
		quotaRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Requests left in today's quota at run start",
		}),
		freshnessChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freshness_checks_total",
			Help:      "Sentinel freshness checks by survey",
		}, []string{"survey"}),
		sentinelsChanged: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sentinels_changed",
			Help:      "Sentinels with new data at the last check",
		}, []string{"survey"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last snapshot was written",
		}),
	}
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// APIRequest counts one logical upstream call.
func (r *Recorder) APIRequest(outcome string) {
	r.apiRequests.WithLabelValues(outcome).Inc()
}

// APIRetry counts one transport retry.
func (r *Recorder) APIRetry() {
	r.apiRetries.Inc()
}

// BatchCommitted counts a persisted batch.
func (r *Recorder) BatchCommitted(surveyCode string, series, observations, requests int) {
	r.batches.WithLabelValues(surveyCode, "committed").Inc()
	r.seriesUpdated.WithLabelValues(surveyCode).Add(float64(series))
	r.observations.WithLabelValues(surveyCode).Add(float64(observations))
	r.requestsUsed.WithLabelValues(surveyCode).Add(float64(requests))
}

// BatchFailed counts a batch that failed after retries.
func (r *Recorder) BatchFailed(surveyCode string) {
	r.batches.WithLabelValues(surveyCode, "failed").Inc()
}

// QuotaRemaining sets the remaining daily quota.
func (r *Recorder) QuotaRemaining(n int) {
	r.quotaRemaining.Set(float64(n))
}

// FreshnessChecked records one sentinel check.
func (r *Recorder) FreshnessChecked(surveyCode string, changed int) {
	r.freshnessChecks.WithLabelValues(surveyCode).Inc()
	r.sentinelsChanged.WithLabelValues(surveyCode).Set(float64(changed))
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	r.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
