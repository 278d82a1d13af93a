package driven

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// APIRequest counts one logical upstream call by outcome ("ok", "error", "circuit_open").
	APIRequest(outcome string)

	// APIRetry counts one transport retry.
	APIRetry()

	// BatchCommitted counts a persisted batch.
	BatchCommitted(surveyCode string, series, observations, requests int)

	// BatchFailed counts a batch that failed after retries.
	BatchFailed(surveyCode string)

	// QuotaRemaining sets the remaining daily quota.
	QuotaRemaining(n int)

	// FreshnessChecked records a sentinel check and how many sentinels changed.
	FreshnessChecked(surveyCode string, changed int)
}
