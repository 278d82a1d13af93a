package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

func freshnessTask(now time.Time) *domain.ScheduledTask {
	return &domain.ScheduledTask{
		ID:          domain.TaskIDFreshnessCheck,
		Name:        "Freshness Check",
		Interval:    24 * time.Hour,
		LastRun:     now.Add(-30 * time.Minute),
		NextRun:     now.Add(23 * time.Hour),
		LastSuccess: now.Add(-30 * time.Minute),
		Enabled:     true,
	}
}

func TestSchedulerStore_SaveAndGetTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Second)
	task := freshnessTask(now)
	require.NoError(t, ss.SaveTask(ctx, task))

	got, err := ss.GetTask(ctx, domain.TaskIDFreshnessCheck)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Name, got.Name)
	assert.Equal(t, 24*time.Hour, got.Interval)
	assert.True(t, got.Enabled)
	assert.Empty(t, got.LastError)
	assert.True(t, task.LastRun.Equal(got.LastRun))
	assert.True(t, task.NextRun.Equal(got.NextRun))

	// Saving again replaces the row.
	task.Enabled = false
	task.LastError = "quota exhausted"
	require.NoError(t, ss.SaveTask(ctx, task))
	got, err = ss.GetTask(ctx, domain.TaskIDFreshnessCheck)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "quota exhausted", got.LastError)
}

func TestSchedulerStore_GetTask_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := store.SchedulerStore().GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchedulerStore_SaveTask_Nil(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.SchedulerStore().SaveTask(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSchedulerStore_ListTasks_Ordered(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	tasks, err := ss.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, ss.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDSurveySync, Name: "Survey Sync", Interval: time.Hour}))
	require.NoError(t, ss.SaveTask(ctx, freshnessTask(time.Now())))

	tasks, err = ss.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.TaskIDFreshnessCheck, tasks[0].ID)
	assert.Equal(t, domain.TaskIDSurveySync, tasks[1].ID)
	assert.True(t, tasks[1].LastRun.IsZero(), "unset times stay zero")
}

func TestSchedulerStore_FinishRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	now := time.Now().UTC()
	task := freshnessTask(now)
	result := &domain.TaskResult{
		TaskID:         task.ID,
		StartedAt:      now.Add(-time.Minute),
		EndedAt:        now,
		Success:        true,
		ItemsProcessed: 2,
		RequestsUsed:   4,
		Surveys:        []string{"CU", "LA"},
	}
	require.NoError(t, ss.FinishRun(ctx, task, result, 10))

	got, err := ss.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "FinishRun creates the task row")

	history, err := ss.History(ctx, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	h := history[0]
	assert.True(t, h.Success)
	assert.Empty(t, h.Error)
	assert.Equal(t, 2, h.ItemsProcessed)
	assert.Equal(t, 4, h.RequestsUsed)
	assert.Equal(t, []string{"CU", "LA"}, h.Surveys)
	assert.Equal(t, time.Minute, h.Duration())
}

func TestSchedulerStore_FinishRun_FailedRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	now := time.Now()
	task := &domain.ScheduledTask{ID: domain.TaskIDSurveySync, Interval: time.Hour, Enabled: true, LastError: "upstream 503"}
	require.NoError(t, ss.FinishRun(ctx, task, &domain.TaskResult{
		TaskID: task.ID, StartedAt: now, EndedAt: now, Error: "upstream 503",
	}, 10))

	history, err := ss.History(ctx, task.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, "upstream 503", history[0].Error)
	assert.Nil(t, history[0].Surveys)
}

func TestSchedulerStore_FinishRun_TrimsPerTask(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	base := time.Now().UTC().Add(-time.Hour)
	fresh := freshnessTask(base)
	sync := &domain.ScheduledTask{ID: domain.TaskIDSurveySync, Interval: time.Hour, Enabled: true}

	require.NoError(t, ss.FinishRun(ctx, sync, &domain.TaskResult{StartedAt: base, EndedAt: base}, 3))
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, ss.FinishRun(ctx, fresh, &domain.TaskResult{
			StartedAt: at, EndedAt: at, ItemsProcessed: i,
		}, 3))
	}

	history, err := ss.History(ctx, fresh.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, want := range []int{4, 3, 2} {
		assert.Equal(t, want, history[i].ItemsProcessed, fmt.Sprintf("position %d", i))
	}

	other, err := ss.History(ctx, sync.ID, 10)
	require.NoError(t, err)
	assert.Len(t, other, 1, "trimming one task leaves others alone")
}

func TestSchedulerStore_FinishRun_Invalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ss := store.SchedulerStore()

	assert.ErrorIs(t, ss.FinishRun(context.Background(), nil, &domain.TaskResult{}, 1), domain.ErrInvalidInput)
	assert.ErrorIs(t, ss.FinishRun(context.Background(), freshnessTask(time.Now()), nil, 1), domain.ErrInvalidInput)
}

func TestSchedulerStore_History_Limit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	task := freshnessTask(time.Now())
	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, ss.FinishRun(ctx, task, &domain.TaskResult{StartedAt: at, EndedAt: at}, 100))
	}

	history, err := ss.History(ctx, task.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].StartedAt.After(history[1].StartedAt))

	none, err := ss.History(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
