package driving

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// Scheduler runs the freshness-check and survey-sync background tasks.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// Tasks returns the persisted task state.
	Tasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// History returns a task's most recent runs, newest first.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
