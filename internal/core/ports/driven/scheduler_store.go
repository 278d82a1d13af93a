package driven

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// SchedulerStore keeps scheduled task state and run history so a restarted
// scheduler knows when each task is next due.
type SchedulerStore interface {
	// GetTask returns nil and no error if the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	// ListTasks returns all tasks ordered by ID.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask creates or replaces a task.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// FinishRun atomically saves the task's post-run state, appends the run
	// result and trims the task's history to the newest keep results.
	FinishRun(ctx context.Context, task *domain.ScheduledTask, result *domain.TaskResult, keep int) error

	// History returns up to limit results for a task, newest first.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
