package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownSurvey indicates a survey code that is not in the registry.
	ErrUnknownSurvey = errors.New("unknown survey")

	// ErrInvalidYearRange indicates a start year after the end year, or a year
	// outside the range the upstream API serves.
	ErrInvalidYearRange = errors.New("invalid year range")

	// ErrSyncInProgress indicates an update cycle is already running for the survey.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrNoSentinels indicates a survey has no sentinel sample selected yet.
	ErrNoSentinels = errors.New("no sentinels selected")

	// ErrNoActiveSeries indicates a survey has no active series to track.
	ErrNoActiveSeries = errors.New("no active series")

	// Upstream API Errors.

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitOpen indicates requests are being refused locally because the
	// upstream API has been failing.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrUpstreamRejected indicates the API answered but refused the request
	// (bad series id, daily threshold reached upstream, malformed payload).
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// Storage Errors.

	// ErrPersistence indicates a batch could not be committed to the store.
	ErrPersistence = errors.New("persistence failed")
)

// UnknownSurveyError reports an unrecognised survey code together with the
// codes the registry does know about.
type UnknownSurveyError struct {
	Code  string
	Valid []string
}

func (e *UnknownSurveyError) Error() string {
	return fmt.Sprintf("unknown survey %q (valid: %s)", e.Code, strings.Join(e.Valid, ", "))
}

// Unwrap lets errors.Is match ErrUnknownSurvey.
func (e *UnknownSurveyError) Unwrap() error {
	return ErrUnknownSurvey
}
