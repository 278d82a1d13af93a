package driven

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// APIUsageStore is the append-only quota ledger.
type APIUsageStore interface {
	// Append records a new entry. Entries are never updated or merged.
	Append(ctx context.Context, entry *domain.APIUsageLogEntry) error

	// SumByDate returns the total requests recorded for date (YYYY-MM-DD).
	SumByDate(ctx context.Context, date string) (int, error)

	// ListByDate returns the entries recorded for date, oldest first.
	ListByDate(ctx context.Context, date string) ([]domain.APIUsageLogEntry, error)
}
