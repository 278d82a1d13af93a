package driven

import (
	"context"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// SentinelStore persists the per-survey sentinel sample.
type SentinelStore interface {
	// ReplaceSentinels swaps the survey's sample for a new one.
	ReplaceSentinels(ctx context.Context, surveyCode string, sentinels []domain.SurveySentinel) error

	// ListSentinels returns the survey's sample ordered by position.
	ListSentinels(ctx context.Context, surveyCode string) ([]domain.SurveySentinel, error)

	// SaveSentinels updates existing sentinels after a check.
	SaveSentinels(ctx context.Context, sentinels []domain.SurveySentinel) error
}

// FreshnessStore persists the per-survey freshness aggregate.
//
// Two writers share a row: the freshness checker owns the change signal and
// the cycle manager owns the progress mirror. Each writes only its fields.
type FreshnessStore interface {
	// GetFreshness returns the survey's aggregate.
	// Returns domain.ErrNotFound if the survey has never been checked or synced.
	GetFreshness(ctx context.Context, surveyCode string) (*domain.SurveyFreshness, error)

	// ListFreshness returns every aggregate ordered by survey code.
	ListFreshness(ctx context.Context) ([]domain.SurveyFreshness, error)

	// SaveCheck writes the change-signal fields of f, creating the row if needed.
	SaveCheck(ctx context.Context, f *domain.SurveyFreshness) error

	// SaveProgress writes the cycle progress mirror, creating the row if needed.
	// A non-zero completedAt clears needs_full_update and sets last_full_update_at.
	SaveProgress(ctx context.Context, surveyCode string, inProgress bool, total, updated int, completedAt time.Time) error
}
