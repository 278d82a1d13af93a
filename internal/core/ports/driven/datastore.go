package driven

import (
	"context"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// DataStore is the observation warehouse and active-series catalog.
type DataStore interface {
	// UpsertObservations inserts or updates observations keyed by
	// (series id, year, period), refreshing updated_at on conflict.
	// Returns the number of rows written.
	UpsertObservations(ctx context.Context, surveyCode string, obs []domain.Observation) (int, error)

	// ActiveSeriesIDs returns the sorted ids of series that should be tracked.
	ActiveSeriesIDs(ctx context.Context, surveyCode string) ([]string, error)

	// LatestObservations returns the newest stored observation per series.
	// Series with no stored data are absent from the map.
	LatestObservations(ctx context.Context, seriesIDs []string) (map[string]domain.Observation, error)

	// SaveSeries creates or updates catalog entries.
	SaveSeries(ctx context.Context, series []domain.Series) error

	// DeactivateSeries marks series as no longer tracked.
	// Returns the number of series changed.
	DeactivateSeries(ctx context.Context, surveyCode string, seriesIDs []string) (int, error)
}
