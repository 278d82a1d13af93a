package blsapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.TimeSeriesAPI = (*Client)(nil)

const (
	// DefaultBaseURL is the v2 time-series data endpoint.
	DefaultBaseURL = "https://api.bls.gov/publicAPI/v2/timeseries/data/"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for transient errors.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second

	// BreakerThreshold is how many consecutive failed calls open the circuit.
	BreakerThreshold = 5

	// BreakerTimeout is how long the circuit stays open before a trial call.
	BreakerTimeout = time.Minute
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client. Zero values select defaults.
type Config struct {
	// APIKey is the registration key. Without one the smaller unregistered
	// request shape is used.
	APIKey string

	BaseURL           string
	RequestsPerSecond float64
	MaxRetries        int
	RetryDelay        time.Duration
	BreakerThreshold  uint32
	BreakerTimeout    time.Duration

	HTTP    HTTPDoer
	Metrics driven.Metrics
}

// Client fetches observations from the time-series API. It is stateless
// apart from pacing and breaker state and persists nothing.
type Client struct {
	apiKey     string
	baseURL    string
	http       HTTPDoer
	limiter    *RateLimiter
	breaker    *gobreaker.CircuitBreaker[*response]
	metrics    driven.Metrics
	maxSeries  int
	maxYears   int
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		http:       cfg.HTTP,
		limiter:    NewRateLimiter(cfg.RequestsPerSecond),
		metrics:    cfg.Metrics,
		maxSeries:  domain.MaxSeriesPerRequest,
		maxYears:   domain.MaxYearsPerRequest,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.apiKey == "" {
		c.maxSeries = domain.MaxSeriesPerRequestUnregistered
		c.maxYears = domain.MaxYearsPerRequestUnregistered
	}
	if c.maxRetries <= 0 {
		c.maxRetries = MaxRetries
	}
	if c.retryDelay <= 0 {
		c.retryDelay = RetryDelay
	}

	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = BreakerThreshold
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = BreakerTimeout
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "bls-api",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections and cancellations say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrUpstreamRejected) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("%s: circuit %s -> %s", name, from, to)
		},
	})
	return c
}

// Limits returns the request shape in use: series per call and years per window.
func (c *Client) Limits() (series, years int) {
	return c.maxSeries, c.maxYears
}

// FetchMany fetches seriesIDs over [startYear, endYear], one call per
// (series batch, year window). Failed calls are reported in the result's
// Errors and do not stop the remaining calls.
func (c *Client) FetchMany(ctx context.Context, seriesIDs []string, startYear, endYear int, opts domain.FetchOptions) (*domain.FetchResult, error) {
	years := domain.YearRange{Start: startYear, End: endYear}
	if err := years.Validate(); err != nil {
		return nil, err
	}

	res := &domain.FetchResult{}
	seen := make(map[string]bool)
	n := 0
	for _, batch := range chunk(seriesIDs, c.maxSeries) {
		for _, w := range years.Split(c.maxYears) {
			body := request{
				SeriesID:        batch,
				StartYear:       strconv.Itoa(w.Start),
				EndYear:         strconv.Itoa(w.End),
				RegistrationKey: c.apiKey,
				Catalog:         opts.Catalog,
				Calculations:    opts.Calculations,
				AnnualAverage:   opts.AnnualAverage,
			}
			if err := c.exchange(ctx, body, res, seen); err != nil {
				res.Errors = append(res.Errors, domain.BatchError{
					Batch:     n,
					SeriesIDs: batch,
					StartYear: w.Start,
					EndYear:   w.End,
					Err:       err,
					At:        time.Now(),
				})
			}
			n++
		}
	}
	return res, nil
}

// FetchLatest fetches only the most recent observation of each series.
func (c *Client) FetchLatest(ctx context.Context, seriesIDs []string) (*domain.FetchResult, error) {
	res := &domain.FetchResult{}
	seen := make(map[string]bool)
	for n, batch := range chunk(seriesIDs, c.maxSeries) {
		body := request{SeriesID: batch, RegistrationKey: c.apiKey, Latest: true}
		if err := c.exchange(ctx, body, res, seen); err != nil {
			res.Errors = append(res.Errors, domain.BatchError{
				Batch:     n,
				SeriesIDs: batch,
				Err:       err,
				At:        time.Now(),
			})
		}
	}
	return res, nil
}

// exchange performs one logical call through the breaker and merges the
// answer into res. RequestsUsed grows only if a request left the process.
func (c *Client) exchange(ctx context.Context, body request, res *domain.FetchResult, seen map[string]bool) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	issued := false
	payload, err := c.breaker.Execute(func() (*response, error) {
		return c.doWithRetry(ctx, raw, &issued)
	})
	if issued {
		res.RequestsUsed++
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.APIRequest("circuit_open")
		return fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
	case err != nil:
		c.metrics.APIRequest("error")
		return err
	}

	c.metrics.APIRequest("ok")
	res.Observations = append(res.Observations, payload.observations()...)
	for _, msg := range payload.Message {
		if msg != "" && !seen[msg] {
			seen[msg] = true
			res.Messages = append(res.Messages, msg)
		}
	}
	return nil
}

// doWithRetry posts body, retrying transient failures with exponential
// backoff. Retries are not separate logical calls.
func (c *Client) doWithRetry(ctx context.Context, body []byte, issued *bool) (*response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.APIRetry()
			delay := backoff(c.retryDelay, attempt-1, lastErr)
			logger.Debug("bls: retry %d/%d in %s: %v", attempt, c.maxRetries, delay, lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		*issued = true

		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// do performs a single POST and decodes the answer.
func (c *Client) do(ctx context.Context, body []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckRateLimit(resp); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
			URL:        c.baseURL,
		}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrUpstreamRejected, err)
	}
	if payload.Status != StatusSucceeded {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     payload.Status,
			Message:    strings.Join(payload.Message, "; "),
			URL:        c.baseURL,
		}
	}
	return &payload, nil
}

// transientError wraps transport failures (timeouts, resets).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return "bls: transport: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var apiErr *APIError
	var transient *transientError
	switch {
	case IsRateLimited(err):
		return true
	case errors.As(err, &apiErr):
		return apiErr.Retryable()
	case errors.As(err, &transient):
		return true
	default:
		return false
	}
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) APIRequest(string)                    {}
func (nopMetrics) APIRetry()                            {}
func (nopMetrics) BatchCommitted(string, int, int, int) {}
func (nopMetrics) BatchFailed(string)                   {}
func (nopMetrics) QuotaRemaining(int)                   {}
func (nopMetrics) FreshnessChecked(string, int)         {}
