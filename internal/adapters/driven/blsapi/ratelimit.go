package blsapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond paces calls well below what upstream tolerates.
	DefaultRequestsPerSecond = 2.0

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// RateLimiter paces outgoing calls with a token bucket and turns 429
// answers into RateLimitErrors.
type RateLimiter struct {
	bucket *rate.Limiter
}

// NewRateLimiter creates a limiter allowing perSecond calls per second.
// A non-positive rate uses the default.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRequestsPerSecond
	}
	return &RateLimiter{bucket: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until a call may be issued.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.bucket.Wait(ctx)
}

// CheckRateLimit returns a RateLimitError if resp is a 429, nil otherwise.
func (r *RateLimiter) CheckRateLimit(resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	rl := &RateLimitError{}
	if retryAfter := resp.Header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			rl.RetryAt = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}
	return rl
}

// backoff returns the delay before retry number attempt (0-based): base
// doubled per attempt, or the upstream hint when that is longer.
func backoff(base time.Duration, attempt int, err error) time.Duration {
	d := base << attempt
	var rl *RateLimitError
	if errors.As(err, &rl) && !rl.RetryAt.IsZero() {
		if hint := time.Until(rl.RetryAt); hint > d {
			d = hint
		}
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
