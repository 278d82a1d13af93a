package domain

import "time"

// ScheduledTask is a recurring background job with its run bookkeeping.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError holds the most recent failure message, cleared on success.
	LastError string

	Enabled bool
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !now.Before(t.NextRun)
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts surveys checked or series updated, depending on the task.
	ItemsProcessed int

	// RequestsUsed is the API quota the run spent.
	RequestsUsed int

	// Surveys lists the surveys the run checked or synchronised.
	Surveys []string
}

// Duration returns how long the run took.
func (r TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Enabled bool

	// TaskConfigs holds per-task configuration.
	TaskConfigs map[string]TaskConfig

	// Surveys limits scheduled work to these codes. Empty means every registered survey.
	Surveys []string
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for a specific task.
// Returns a zero TaskConfig if the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig returns the default daily freshness check and hourly
// sync of surveys flagged as stale.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDFreshnessCheck: {
				Enabled:  true,
				Interval: 24 * time.Hour,
			},
			TaskIDSurveySync: {
				Enabled:  true,
				Interval: 1 * time.Hour,
			},
		},
	}
}

// Task IDs for built-in tasks.
const (
	TaskIDFreshnessCheck = "freshness-check"
	TaskIDSurveySync     = "survey-sync"
)
