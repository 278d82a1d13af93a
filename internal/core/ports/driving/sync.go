package driving

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// CycleManager drives update cycles: it resolves or creates a survey's cycle,
// spends quota in batches, and persists progress after every batch.
type CycleManager interface {
	// SyncSurvey synchronises one survey. Quota exhaustion is not an error;
	// it is reported as Completed=false with the partial result.
	SyncSurvey(ctx context.Context, req domain.SyncRequest) (*domain.SyncResult, error)

	// SyncSurveys validates every survey code, then synchronises them under
	// one shared run budget.
	SyncSurveys(ctx context.Context, plan domain.SyncPlan) (*domain.SyncSummary, error)

	// CheckOnly reports outstanding work without calling the API or spending quota.
	CheckOnly(ctx context.Context, surveyCodes []string, years domain.YearRange) ([]domain.OutstandingReport, error)

	// Status returns the survey's most recent cycle, or nil if it never had one.
	Status(ctx context.Context, surveyCode string) (*domain.UpdateCycle, error)
}
