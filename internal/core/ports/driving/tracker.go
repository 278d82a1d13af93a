package driving

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// SeriesTracker gates re-fetching of series that are already current.
type SeriesTracker interface {
	// Outstanding returns the sorted active series that need fetching. With
	// ignoreFreshnessWindow every active series is outstanding.
	Outstanding(ctx context.Context, surveyCode string, ignoreFreshnessWindow bool) ([]string, error)

	// MarkChecked records fetch outcomes for series of the survey.
	MarkChecked(ctx context.Context, surveyCode string, checks []domain.SeriesCheck) error

	// ResetSurvey clears is_current for every series of the survey.
	ResetSurvey(ctx context.Context, surveyCode string) (int, error)

	// Counts returns active, current and outstanding series counts.
	Counts(ctx context.Context, surveyCode string) (active, current, outstanding int, err error)
}
