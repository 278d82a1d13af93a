package driven

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// SeriesStatusStore persists per-series update bookkeeping.
type SeriesStatusStore interface {
	// ListBySurvey returns every status row of the survey keyed by series id.
	ListBySurvey(ctx context.Context, surveyCode string) (map[string]domain.SeriesUpdateStatus, error)

	// Upsert creates or replaces status rows.
	Upsert(ctx context.Context, statuses []domain.SeriesUpdateStatus) error

	// ResetSurvey clears is_current for every series of the survey, keeping history.
	// Returns the number of rows changed.
	ResetSurvey(ctx context.Context, surveyCode string) (int, error)
}
