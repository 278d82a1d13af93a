package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

func TestSeriesTracker_Outstanding(t *testing.T) {
	h := newHarness(t, map[string]int{"CU": 4})
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, h.statuses.Upsert(ctx, []domain.SeriesUpdateStatus{
		{SeriesID: seriesID("CU", 0), SurveyCode: "CU", IsCurrent: true, LastCheckedAt: now.Add(-time.Hour)},
		{SeriesID: seriesID("CU", 1), SurveyCode: "CU", IsCurrent: true, LastCheckedAt: now.Add(-48 * time.Hour)},
		{SeriesID: seriesID("CU", 2), SurveyCode: "CU", IsCurrent: false, LastCheckedAt: now.Add(-time.Hour)},
	}))

	out, err := h.tracker.Outstanding(ctx, "CU", false)
	require.NoError(t, err)
	assert.Equal(t, []string{seriesID("CU", 1), seriesID("CU", 2), seriesID("CU", 3)}, out)

	all, err := h.tracker.Outstanding(ctx, "CU", true)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, current, outstanding, err := h.tracker.Counts(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, 4, active)
	assert.Equal(t, 1, current)
	assert.Equal(t, 3, outstanding)
}

func TestSeriesTracker_MarkChecked(t *testing.T) {
	h := newHarness(t, map[string]int{"CU": 2})
	ctx := context.Background()
	checkedAt := time.Now().Add(-time.Minute)
	id0, id1 := seriesID("CU", 0), seriesID("CU", 1)

	require.NoError(t, h.tracker.MarkChecked(ctx, "CU", []domain.SeriesCheck{
		{SeriesID: id0, HadNewData: true, Latest: domain.Period{Year: 2026, Period: "M02"}, CheckedAt: checkedAt},
		{SeriesID: id1, HadNewData: false, CheckedAt: checkedAt},
	}))

	statuses, err := h.statuses.ListBySurvey(ctx, "CU")
	require.NoError(t, err)
	assert.True(t, statuses[id0].IsCurrent)
	assert.Equal(t, checkedAt, statuses[id0].LastUpdatedAt)
	assert.Equal(t, "M02", statuses[id0].LastObserved.Period)
	assert.True(t, statuses[id1].LastUpdatedAt.IsZero())

	out, err := h.tracker.Outstanding(ctx, "CU", false)
	require.NoError(t, err)
	assert.Empty(t, out)

	// A later check without new data keeps the earlier update time.
	require.NoError(t, h.tracker.MarkChecked(ctx, "CU", []domain.SeriesCheck{{SeriesID: id0}}))
	statuses, err = h.statuses.ListBySurvey(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, checkedAt, statuses[id0].LastUpdatedAt)
	assert.Equal(t, "M02", statuses[id0].LastObserved.Period)
}

func TestSeriesTracker_ResetSurvey(t *testing.T) {
	h := newHarness(t, map[string]int{"CU": 3, "LA": 1})
	ctx := context.Background()

	var checks []domain.SeriesCheck
	for i := 0; i < 3; i++ {
		checks = append(checks, domain.SeriesCheck{SeriesID: seriesID("CU", i)})
	}
	require.NoError(t, h.tracker.MarkChecked(ctx, "CU", checks))
	require.NoError(t, h.tracker.MarkChecked(ctx, "LA", []domain.SeriesCheck{{SeriesID: seriesID("LA", 0)}}))

	n, err := h.tracker.ResetSurvey(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out, err := h.tracker.Outstanding(ctx, "CU", false)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	la, err := h.tracker.Outstanding(ctx, "LA", false)
	require.NoError(t, err)
	assert.Empty(t, la)
}

func TestNewSeriesTracker_DefaultWindow(t *testing.T) {
	tr := NewSeriesTracker(nil, nil, 0)
	assert.Equal(t, domain.DefaultFreshnessWindow, tr.window)
}
