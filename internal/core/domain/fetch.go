package domain

import (
	"fmt"
	"time"
)

// Upstream request shape limits for a registered API key.
const (
	MaxSeriesPerRequest = 50
	MaxYearsPerRequest  = 20
)

// Limits for unregistered use.
const (
	MaxSeriesPerRequestUnregistered = 25
	MaxYearsPerRequestUnregistered  = 10
)

// FetchOptions shapes a time-series API request.
type FetchOptions struct {
	// Catalog asks upstream to include series catalog metadata.
	Catalog bool

	// Calculations asks upstream to include net/percent changes.
	Calculations bool

	// AnnualAverage asks upstream to include annual averages (period M13).
	AnnualAverage bool
}

// BatchError describes one request batch that failed after retries.
// Fetches continue past it; callers aggregate these into results.
type BatchError struct {
	// SurveyCode is set by the caller when the batch belongs to a sync cycle.
	SurveyCode string

	// Batch is the zero-based batch index within the call.
	Batch int

	// SeriesIDs lists the series in the failed batch.
	SeriesIDs []string

	// StartYear and EndYear bound the failing year window.
	StartYear int
	EndYear   int

	// Err is the underlying failure.
	Err error

	// At is when the failure was recorded.
	At time.Time
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d series, %d-%d): %v", e.Batch, len(e.SeriesIDs), e.StartYear, e.EndYear, e.Err)
}

// Unwrap returns the underlying failure.
func (e BatchError) Unwrap() error {
	return e.Err
}

// FetchResult is the outcome of a multi-batch fetch.
type FetchResult struct {
	// Observations are all data points returned by successful calls.
	Observations []Observation

	// RequestsUsed counts logical API calls issued; transport retries are not counted.
	RequestsUsed int

	// Errors lists batches that failed after retries.
	Errors []BatchError

	// Messages carries upstream informational messages, deduplicated.
	Messages []string
}

// Failed reports whether at least one batch failed.
func (r *FetchResult) Failed() bool {
	return r != nil && len(r.Errors) > 0
}

// FailedSeries returns the set of series ids covered by failed batches.
func (r *FetchResult) FailedSeries() map[string]bool {
	failed := make(map[string]bool)
	if r == nil {
		return failed
	}
	for _, be := range r.Errors {
		for _, id := range be.SeriesIDs {
			failed[id] = true
		}
	}
	return failed
}
