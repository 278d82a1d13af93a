package driven

import (
	"context"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// UpdateCycleStore persists update cycles. Cycles are never hard-deleted.
//
// Implementations must guarantee at most one active (not complete, not
// superseded) cycle per survey, and must flip the running flag atomically.
type UpdateCycleStore interface {
	// Active returns the survey's active cycle.
	// Returns nil and no error if the survey has none.
	Active(ctx context.Context, surveyCode string) (*domain.UpdateCycle, error)

	// Get retrieves a cycle by ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id string) (*domain.UpdateCycle, error)

	// List returns a survey's cycles, newest first.
	List(ctx context.Context, surveyCode string, limit int) ([]domain.UpdateCycle, error)

	// Create inserts a new cycle. Returns domain.ErrAlreadyExists if the
	// survey already has an active cycle.
	Create(ctx context.Context, cycle *domain.UpdateCycle) error

	// Supersede retires an active cycle that is idle, or running with a last
	// heartbeat before staleBefore. Returns false if a live run holds it or it
	// is complete or already superseded.
	Supersede(ctx context.Context, id string, at, staleBefore time.Time) (bool, error)

	// TryStart sets the running flag and heartbeat to at if the cycle is idle,
	// or takes it over if its last heartbeat predates staleBefore (the holder
	// died without finishing). A zero staleBefore never takes over.
	// Returns false if a live run holds the cycle.
	TryStart(ctx context.Context, id string, at, staleBefore time.Time) (bool, error)

	// SaveProgress records the cycle's current totals and refreshes its
	// heartbeat to at.
	SaveProgress(ctx context.Context, id string, totalSeries, seriesUpdated int, at time.Time) error

	// Finish clears the running flag and, when complete is true, marks the
	// cycle complete at the given time.
	Finish(ctx context.Context, id string, complete bool, at time.Time) error
}
