package domain

import "time"

// DefaultCycleLease is how long a running cycle may go without a heartbeat
// before another run may take it over. It comfortably exceeds one batch,
// retries included.
const DefaultCycleLease = 15 * time.Minute

// CycleState is the derived lifecycle state of a survey's update cycle.
type CycleState string

// Cycle states. A paused cycle is ACTIVE with Running=false.
const (
	CycleStateNone     CycleState = "no_cycle"
	CycleStateActive   CycleState = "active"
	CycleStateComplete CycleState = "complete"
)

// UpdateCycle is one attempt, possibly spanning several resumed runs, to bring
// every active series of a survey up to date.
type UpdateCycle struct {
	// ID is the unique identifier of the cycle.
	ID string

	// SurveyCode is the survey being synchronised.
	SurveyCode string

	// TotalSeries is the active-series count, refreshed on every resume.
	TotalSeries int

	// SeriesUpdated counts series brought current under this cycle.
	SeriesUpdated int

	// IsComplete is set once every active series is current.
	IsComplete bool

	// IsRunning is set while a run holds the cycle.
	IsRunning bool

	// Force records that the cycle was created by a force update.
	Force bool

	// CreatedAt is when the cycle was created.
	CreatedAt time.Time

	// StartedAt is when the most recent run took the cycle.
	StartedAt time.Time

	// CompletedAt is when the cycle was marked complete.
	CompletedAt time.Time

	// SupersededAt is set when a force update replaced this cycle.
	SupersededAt time.Time

	// HeartbeatAt is refreshed with every progress save of the holding run.
	HeartbeatAt time.Time
}

// State returns the lifecycle state of the cycle. A nil cycle has no state.
func (c *UpdateCycle) State() CycleState {
	switch {
	case c == nil:
		return CycleStateNone
	case c.IsComplete:
		return CycleStateComplete
	default:
		return CycleStateActive
	}
}

// IsActive reports whether the cycle can still be resumed.
func (c *UpdateCycle) IsActive() bool {
	return c != nil && !c.IsComplete && c.SupersededAt.IsZero()
}

// LastBeat returns the most recent sign of life of the run holding the cycle.
func (c *UpdateCycle) LastBeat() time.Time {
	if c.HeartbeatAt.After(c.StartedAt) {
		return c.HeartbeatAt
	}
	return c.StartedAt
}

// IsStale reports whether the cycle is marked running but its holder has not
// been heard from since staleBefore, as after a crash. A zero staleBefore
// never reports stale.
func (c *UpdateCycle) IsStale(staleBefore time.Time) bool {
	return c != nil && c.IsRunning && !staleBefore.IsZero() && c.LastBeat().Before(staleBefore)
}

// Remaining returns how many series are still to be updated, never negative.
func (c *UpdateCycle) Remaining() int {
	if c == nil || c.SeriesUpdated >= c.TotalSeries {
		return 0
	}
	return c.TotalSeries - c.SeriesUpdated
}

// Percent returns cycle progress in the range [0, 100].
func (c *UpdateCycle) Percent() float64 {
	if c == nil || c.TotalSeries == 0 {
		return 0
	}
	if c.SeriesUpdated >= c.TotalSeries {
		return 100
	}
	return float64(c.SeriesUpdated) * 100 / float64(c.TotalSeries)
}
