package domain

import (
	"fmt"
	"time"
)

// SyncMode selects how an update cycle is resolved.
type SyncMode string

// Available sync modes.
const (
	// SyncModeSoft resumes an existing cycle and skips series already current.
	SyncModeSoft SyncMode = "soft"

	// SyncModeForce starts a fresh cycle and re-fetches every active series.
	SyncModeForce SyncMode = "force"
)

// IsValid returns true if the mode is recognised.
func (m SyncMode) IsValid() bool {
	return m == SyncModeSoft || m == SyncModeForce
}

// String returns the string representation.
func (m SyncMode) String() string {
	return string(m)
}

// Upstream year bounds.
const (
	MinYear = 1913
	MaxYear = 2100
)

// YearRange is an inclusive span of years.
type YearRange struct {
	Start int
	End   int
}

// DefaultYearRange returns prior year through the year of now.
func DefaultYearRange(now time.Time) YearRange {
	return YearRange{Start: now.Year() - 1, End: now.Year()}
}

// Validate checks the range is ordered and within upstream bounds.
func (r YearRange) Validate() error {
	if r.Start < MinYear || r.End > MaxYear || r.Start > r.End {
		return fmt.Errorf("%w: %d-%d", ErrInvalidYearRange, r.Start, r.End)
	}
	return nil
}

// Years returns the number of years in the range.
func (r YearRange) Years() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Windows returns how many requests one series batch costs when the range is
// split into windows of at most maxYears.
func (r YearRange) Windows(maxYears int) int {
	if maxYears <= 0 || r.Years() == 0 {
		return 0
	}
	return (r.Years() + maxYears - 1) / maxYears
}

// Split divides the range into consecutive windows of at most maxYears,
// oldest first.
func (r YearRange) Split(maxYears int) []YearRange {
	if maxYears <= 0 || r.Years() == 0 {
		return nil
	}
	out := make([]YearRange, 0, r.Windows(maxYears))
	for start := r.Start; start <= r.End; start += maxYears {
		end := start + maxYears - 1
		if end > r.End {
			end = r.End
		}
		out = append(out, YearRange{Start: start, End: end})
	}
	return out
}

// Progress is reported to callers after every committed batch.
type Progress struct {
	SurveyCode        string
	Batch             int
	Batches           int
	SeriesUpdated     int
	SeriesTotal       int
	ObservationsAdded int
	RequestsUsed      int
	Errors            int
}

// ProgressFunc receives running totals. It must not block for long.
type ProgressFunc func(Progress)

// SyncRequest asks for one survey to be synchronised.
type SyncRequest struct {
	SurveyCode string
	Mode       SyncMode
	Years      YearRange

	// QuotaBudget caps the requests this run may spend.
	QuotaBudget int

	// DailyLimit is the shared daily quota across all surveys.
	DailyLimit int

	// Progress is optional.
	Progress ProgressFunc
}

// SyncResult is the aggregated outcome of one survey sync run.
type SyncResult struct {
	SurveyCode        string
	CycleID           string
	SeriesUpdated     int
	ObservationsAdded int
	RequestsUsed      int
	BatchesAttempted  int
	BatchesFailed     int

	// Completed is true when the cycle finished in this run or nothing was outstanding.
	Completed bool

	// AlreadyRunning is set when another run holds the cycle; no work was done.
	AlreadyRunning bool

	// QuotaExhausted is set when the run stopped early for lack of quota.
	QuotaExhausted bool

	// Cancelled is set when the run stopped between batches on operator interrupt.
	Cancelled bool

	// Outstanding is the number of series still to fetch when the run ended.
	Outstanding int

	Cycle    *UpdateCycle
	Errors   []BatchError
	Warnings []string

	// Err is set when the survey could not be synchronised at all.
	Err error
}

// AllBatchesFailed reports whether batches were attempted and none succeeded.
func (r *SyncResult) AllBatchesFailed() bool {
	return r != nil && r.BatchesAttempted > 0 && r.BatchesFailed == r.BatchesAttempted
}

// ConfirmFunc is asked whether to proceed when the estimated requests exceed
// what the run may spend.
type ConfirmFunc func(needed, available int) bool

// SyncPlan asks for several surveys to be synchronised in one invocation.
type SyncPlan struct {
	SurveyCodes []string
	Mode        SyncMode
	Years       YearRange
	QuotaBudget int
	DailyLimit  int

	// Parallel bounds how many surveys run at once; values below 2 run sequentially.
	Parallel int

	// AutoConfirm proceeds without consulting Confirm.
	AutoConfirm bool
	Confirm     ConfirmFunc

	Progress ProgressFunc
}

// SyncSummary aggregates the results of a SyncPlan.
type SyncSummary struct {
	Results           []*SyncResult
	SeriesUpdated     int
	ObservationsAdded int
	RequestsUsed      int
	Errors            []BatchError
	Warnings          []string

	// Declined is set when Confirm refused the run; no work was done.
	Declined bool
}

// Add folds one survey result into the summary.
func (s *SyncSummary) Add(r *SyncResult) {
	if r == nil {
		return
	}
	s.Results = append(s.Results, r)
	s.SeriesUpdated += r.SeriesUpdated
	s.ObservationsAdded += r.ObservationsAdded
	s.RequestsUsed += r.RequestsUsed
	s.Errors = append(s.Errors, r.Errors...)
	s.Warnings = append(s.Warnings, r.Warnings...)
}

// AllFailed reports whether every requested survey failed: each either could
// not be synchronised at all or had every attempted batch fail. A survey that
// had nothing to do has not failed.
func (s *SyncSummary) AllFailed() bool {
	failed := false
	for _, r := range s.Results {
		switch {
		case r.Err != nil:
			failed = true
		case r.AllBatchesFailed():
			failed = true
		default:
			return false
		}
	}
	return failed
}

// FirstErrors returns at most n errors for display.
func (s *SyncSummary) FirstErrors(n int) []BatchError {
	if len(s.Errors) <= n {
		return s.Errors
	}
	return s.Errors[:n]
}

// OutstandingReport is the check-only view of one survey.
type OutstandingReport struct {
	SurveyCode      string
	ActiveSeries    int
	CurrentSeries   int
	Outstanding     int
	RequestsNeeded  int
	Cycle           *UpdateCycle
	NeedsFullUpdate bool
}
