package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
)

// Ensure SeriesTracker implements the interface.
var _ driving.SeriesTracker = (*SeriesTracker)(nil)

// SeriesTracker decides which active series still need fetching.
type SeriesTracker struct {
	data     driven.DataStore
	statuses driven.SeriesStatusStore
	window   time.Duration
	now      func() time.Time
}

// NewSeriesTracker creates a tracker. A non-positive window uses
// domain.DefaultFreshnessWindow.
func NewSeriesTracker(data driven.DataStore, statuses driven.SeriesStatusStore, window time.Duration) *SeriesTracker {
	if window <= 0 {
		window = domain.DefaultFreshnessWindow
	}
	return &SeriesTracker{
		data:     data,
		statuses: statuses,
		window:   window,
		now:      time.Now,
	}
}

// Outstanding returns active series whose status is missing, stale, or reset.
func (t *SeriesTracker) Outstanding(ctx context.Context, surveyCode string, ignoreFreshnessWindow bool) ([]string, error) {
	active, err := t.data.ActiveSeriesIDs(ctx, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("listing active series: %w", err)
	}
	if ignoreFreshnessWindow {
		out := append([]string(nil), active...)
		sort.Strings(out)
		return out, nil
	}

	statuses, err := t.statuses.ListBySurvey(ctx, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("listing series status: %w", err)
	}

	now := t.now()
	out := make([]string, 0, len(active))
	for _, id := range active {
		st, ok := statuses[id]
		if ok && st.IsFresh(now, t.window) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// MarkChecked records fetch outcomes. LastUpdatedAt only moves when the
// fetch brought new data.
func (t *SeriesTracker) MarkChecked(ctx context.Context, surveyCode string, checks []domain.SeriesCheck) error {
	if len(checks) == 0 {
		return nil
	}
	prior, err := t.statuses.ListBySurvey(ctx, surveyCode)
	if err != nil {
		return fmt.Errorf("listing series status: %w", err)
	}

	now := t.now()
	rows := make([]domain.SeriesUpdateStatus, 0, len(checks))
	for _, c := range checks {
		st := prior[c.SeriesID]
		st.SeriesID = c.SeriesID
		st.SurveyCode = surveyCode
		st.IsCurrent = true
		st.LastCheckedAt = c.CheckedAt
		if st.LastCheckedAt.IsZero() {
			st.LastCheckedAt = now
		}
		if c.HadNewData {
			st.LastUpdatedAt = st.LastCheckedAt
		}
		if !c.Latest.IsZero() {
			st.LastObserved = c.Latest
		}
		rows = append(rows, st)
	}

	if err := t.statuses.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("saving series status: %w", err)
	}
	return nil
}

// ResetSurvey clears is_current for every series of the survey.
func (t *SeriesTracker) ResetSurvey(ctx context.Context, surveyCode string) (int, error) {
	n, err := t.statuses.ResetSurvey(ctx, surveyCode)
	if err != nil {
		return 0, fmt.Errorf("resetting %s: %w", surveyCode, err)
	}
	return n, nil
}

// Counts returns active, current and outstanding series counts.
func (t *SeriesTracker) Counts(ctx context.Context, surveyCode string) (active, current, outstanding int, err error) {
	ids, err := t.data.ActiveSeriesIDs(ctx, surveyCode)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("listing active series: %w", err)
	}
	pending, err := t.Outstanding(ctx, surveyCode, false)
	if err != nil {
		return 0, 0, 0, err
	}
	return len(ids), len(ids) - len(pending), len(pending), nil
}

// LastObserved returns the stored latest upstream period per series.
func (t *SeriesTracker) LastObserved(ctx context.Context, surveyCode string) (map[string]domain.Period, error) {
	statuses, err := t.statuses.ListBySurvey(ctx, surveyCode)
	if err != nil {
		return nil, fmt.Errorf("listing series status: %w", err)
	}
	out := make(map[string]domain.Period, len(statuses))
	for id, st := range statuses {
		out[id] = st.LastObserved
	}
	return out, nil
}
