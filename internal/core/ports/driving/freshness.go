package driving

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// FreshnessChecker detects upstream changes cheaply through sentinel samples.
type FreshnessChecker interface {
	// SelectSentinels picks n evenly spaced active series as the survey's sample,
	// replacing any previous sample.
	SelectSentinels(ctx context.Context, surveyCode string, n int) ([]domain.SurveySentinel, error)

	// Sentinels returns the survey's current sample.
	Sentinels(ctx context.Context, surveyCode string) ([]domain.SurveySentinel, error)

	// CheckSurvey checks one survey. Failures are reported in FreshnessResult.Err;
	// a check skipped for lack of quota sets QuotaExhausted instead.
	CheckSurvey(ctx context.Context, surveyCode string) domain.FreshnessResult

	// CheckAll checks each survey independently.
	CheckAll(ctx context.Context, surveyCodes []string) []domain.FreshnessResult

	// NeedingUpdate lists surveys flagged as needing a full update.
	NeedingUpdate(ctx context.Context) ([]domain.SurveyFreshness, error)

	// Freshness lists every survey's freshness aggregate.
	Freshness(ctx context.Context) ([]domain.SurveyFreshness, error)
}
