package driving

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// QuotaLedger tracks requests spent against the shared daily API quota.
type QuotaLedger interface {
	// Today returns the current quota date (YYYY-MM-DD) in the reporting zone.
	Today() string

	// Remaining returns max(0, dailyLimit - used) for date.
	Remaining(ctx context.Context, date string, dailyLimit int) (int, error)

	// Used returns requests recorded for date.
	Used(ctx context.Context, date string) (int, error)

	// Status summarises date's usage per survey.
	Status(ctx context.Context, date string, dailyLimit int) (*domain.QuotaStatus, error)

	// Record appends an immutable usage entry dated by the current reporting
	// date; usage cannot be backdated.
	Record(ctx context.Context, surveyCode string, requestsUsed, seriesCount int) (*domain.APIUsageLogEntry, error)
}
