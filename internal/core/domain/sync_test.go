package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncMode_IsValid(t *testing.T) {
	assert.True(t, SyncModeSoft.IsValid())
	assert.True(t, SyncModeForce.IsValid())
	assert.False(t, SyncMode("hard").IsValid())
	assert.Equal(t, "force", SyncModeForce.String())
}

func TestDefaultYearRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, YearRange{Start: 2025, End: 2026}, DefaultYearRange(now))
}

func TestYearRange_Validate(t *testing.T) {
	assert.NoError(t, YearRange{Start: 2000, End: 2024}.Validate())
	assert.NoError(t, YearRange{Start: 2024, End: 2024}.Validate())

	err := YearRange{Start: 2025, End: 2024}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidYearRange))

	err = YearRange{Start: 1800, End: 2024}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidYearRange))
}

func TestYearRange_Windows(t *testing.T) {
	tests := []struct {
		r        YearRange
		maxYears int
		want     int
	}{
		{YearRange{2024, 2025}, 20, 1},
		{YearRange{2005, 2024}, 20, 1},
		{YearRange{2004, 2024}, 20, 2},
		{YearRange{1985, 2024}, 20, 2},
		{YearRange{1984, 2024}, 20, 3},
		{YearRange{2024, 2023}, 20, 0},
		{YearRange{2024, 2025}, 0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.Windows(tt.maxYears), "%v/%d", tt.r, tt.maxYears)
	}
}

func TestYearRange_Split(t *testing.T) {
	got := YearRange{1984, 2024}.Split(20)
	assert.Equal(t, []YearRange{{1984, 2003}, {2004, 2023}, {2024, 2024}}, got)
	assert.Len(t, got, YearRange{1984, 2024}.Windows(20))

	assert.Equal(t, []YearRange{{2024, 2025}}, YearRange{2024, 2025}.Split(20))
	assert.Nil(t, YearRange{2025, 2024}.Split(20))
	assert.Nil(t, YearRange{2024, 2025}.Split(0))
}

func TestSyncSummary_AllFailed(t *testing.T) {
	s := &SyncSummary{}
	assert.False(t, s.AllFailed(), "no batches attempted is not a failure")

	s.Add(&SyncResult{BatchesAttempted: 2, BatchesFailed: 2})
	assert.True(t, s.AllFailed())

	s.Add(&SyncResult{Err: errors.New("store unavailable")})
	assert.True(t, s.AllFailed())

	s.Add(&SyncResult{BatchesAttempted: 3, BatchesFailed: 1, SeriesUpdated: 100})
	assert.False(t, s.AllFailed())
	assert.Equal(t, 100, s.SeriesUpdated)
}

func TestSyncSummary_AllFailed_NothingToDo(t *testing.T) {
	s := &SyncSummary{}
	s.Add(&SyncResult{BatchesAttempted: 2, BatchesFailed: 2})
	s.Add(&SyncResult{Completed: true})
	assert.False(t, s.AllFailed())
}

func TestSyncSummary_FirstErrors(t *testing.T) {
	s := &SyncSummary{}
	for i := 0; i < 8; i++ {
		s.Errors = append(s.Errors, BatchError{Batch: i})
	}

	first := s.FirstErrors(5)
	assert.Len(t, first, 5)
	assert.Equal(t, 4, first[4].Batch)
	assert.Len(t, s.FirstErrors(20), 8)
}

func TestUpdateCycle_State(t *testing.T) {
	var none *UpdateCycle
	assert.Equal(t, CycleStateNone, none.State())
	assert.False(t, none.IsActive())

	c := &UpdateCycle{TotalSeries: 200, SeriesUpdated: 50}
	assert.Equal(t, CycleStateActive, c.State())
	assert.True(t, c.IsActive())
	assert.Equal(t, 150, c.Remaining())
	assert.InDelta(t, 25.0, c.Percent(), 0.001)

	c.SupersededAt = time.Now()
	assert.False(t, c.IsActive())

	done := &UpdateCycle{TotalSeries: 10, SeriesUpdated: 12, IsComplete: true}
	assert.Equal(t, CycleStateComplete, done.State())
	assert.Equal(t, 0, done.Remaining())
	assert.Equal(t, 100.0, done.Percent())
}

func TestUpdateCycle_IsStale(t *testing.T) {
	now := time.Now()
	lease := now.Add(-DefaultCycleLease)

	var none *UpdateCycle
	assert.False(t, none.IsStale(lease))

	idle := &UpdateCycle{StartedAt: now.Add(-time.Hour)}
	assert.False(t, idle.IsStale(lease), "idle cycles are never stale")

	crashed := &UpdateCycle{IsRunning: true, StartedAt: now.Add(-time.Hour)}
	assert.True(t, crashed.IsStale(lease))
	assert.False(t, crashed.IsStale(time.Time{}), "zero bound disables takeover")

	crashed.HeartbeatAt = now.Add(-time.Minute)
	assert.Equal(t, crashed.HeartbeatAt, crashed.LastBeat())
	assert.False(t, crashed.IsStale(lease), "recent heartbeat keeps the lease")
}

func TestSeriesUpdateStatus_IsFresh(t *testing.T) {
	now := time.Now()

	fresh := &SeriesUpdateStatus{IsCurrent: true, LastCheckedAt: now.Add(-time.Hour)}
	stale := &SeriesUpdateStatus{IsCurrent: true, LastCheckedAt: now.Add(-25 * time.Hour)}
	reset := &SeriesUpdateStatus{IsCurrent: false, LastCheckedAt: now.Add(-time.Hour)}

	assert.True(t, fresh.IsFresh(now, DefaultFreshnessWindow))
	assert.False(t, stale.IsFresh(now, DefaultFreshnessWindow))
	assert.False(t, reset.IsFresh(now, DefaultFreshnessWindow))

	var missing *SeriesUpdateStatus
	assert.False(t, missing.IsFresh(now, DefaultFreshnessWindow))
}

func TestSurveyFreshness_RecordChange(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &SurveyFreshness{SurveyCode: "CU"}

	f.RecordChange(start)
	assert.True(t, f.NeedsFullUpdate)
	assert.Equal(t, 1, f.DetectCount)
	assert.Zero(t, f.UpdateFrequencyDays)

	f.RecordChange(start.Add(30 * 24 * time.Hour))
	assert.InDelta(t, 30.0, f.UpdateFrequencyDays, 0.001)

	f.RecordChange(start.Add(40 * 24 * time.Hour))
	assert.InDelta(t, 20.0, f.UpdateFrequencyDays, 0.001)
	assert.Equal(t, 3, f.DetectCount)
}
