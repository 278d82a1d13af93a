package blsapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// Upstream status strings.
const (
	StatusSucceeded    = "REQUEST_SUCCEEDED"
	StatusNotProcessed = "REQUEST_NOT_PROCESSED"
)

// RateLimitError represents an HTTP 429 answer with its retry hint.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return "bls: rate limit exceeded"
	}
	return fmt.Sprintf("bls: rate limit exceeded, retry at %s", e.RetryAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is match domain.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// APIError represents a failed upstream exchange: a non-2xx answer, or a
// 200 whose payload status is not REQUEST_SUCCEEDED.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("bls: %s: %s (URL: %s)", e.Status, e.Message, e.URL)
	}
	return fmt.Sprintf("bls: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap lets errors.Is match domain.ErrUpstreamRejected for answers that
// retrying cannot fix.
func (e *APIError) Unwrap() error {
	if e.Retryable() {
		return nil
	}
	return domain.ErrUpstreamRejected
}

// Retryable reports whether the failure is transient.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.Status == StatusNotProcessed
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the error indicates a rejected registration key.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsCircuitOpen checks if the call was refused locally by the breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen)
}
