package driven

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// TimeSeriesAPI fetches observations from the upstream time-series API.
// Implementations own request shaping (batch size, year windows) and
// transient-failure retry. They persist nothing.
type TimeSeriesAPI interface {
	// FetchMany fetches every observation of seriesIDs between startYear and
	// endYear inclusive. The error return is reserved for invalid arguments;
	// failed batches are reported in FetchResult.Errors and do not stop the
	// remaining batches.
	FetchMany(ctx context.Context, seriesIDs []string, startYear, endYear int, opts domain.FetchOptions) (*domain.FetchResult, error)

	// FetchLatest fetches only the most recent observation of each series.
	FetchLatest(ctx context.Context, seriesIDs []string) (*domain.FetchResult, error)
}
