// Package blsapi implements driven.TimeSeriesAPI over the BLS public
// time-series API, version 2.
//
// # Request Shape
//
// Each call carries at most 50 series and covers at most 20 years
// (25 series and 10 years without a registration key). FetchMany splits its
// input into series batches and each batch's year span into windows, oldest
// first; every (batch, window) pair is one logical call. FetchLatest asks
// only for the most recent observation of each series, the cheapest shape.
//
// # Quota Accounting
//
// FetchResult.RequestsUsed counts logical calls that reached the network.
// Transport retries of the same call are not counted, and calls refused by
// the circuit breaker are not counted at all.
//
// # Failure Handling
//
// Calls are paced with a token bucket. HTTP 429, 5xx, transport errors and
// the REQUEST_NOT_PROCESSED payload status are retried up to MaxRetries
// times with exponential backoff, honouring Retry-After. Any other refusal
// is returned at once and wraps domain.ErrUpstreamRejected.
//
// A call that still fails becomes a domain.BatchError in the result and the
// remaining calls proceed. After BreakerThreshold consecutive failures the
// circuit opens and further calls fail locally with domain.ErrCircuitOpen
// until a trial call succeeds.
//
// Values upstream marks as unavailable ("-") are dropped.
package blsapi
