package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

func TestDataStore_ActiveSeriesIDs(t *testing.T) {
	store := NewDataStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSeries(ctx, []domain.Series{
		{ID: "CUUR0000SA0L1E", SurveyCode: "CU", Active: true},
		{ID: "CUUR0000SA0", SurveyCode: "CU", Active: true},
		{ID: "CUUR0000SAF1", SurveyCode: "CU", Active: false},
		{ID: "LAUCN040010000000005", SurveyCode: "LA", Active: true},
	}))

	ids, err := store.ActiveSeriesIDs(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, []string{"CUUR0000SA0", "CUUR0000SA0L1E"}, ids)
}

func TestDataStore_SaveSeries_Invalid(t *testing.T) {
	store := NewDataStore()
	err := store.SaveSeries(context.Background(), []domain.Series{{ID: "x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDataStore_UpsertObservations_Idempotent(t *testing.T) {
	store := NewDataStore()
	ctx := context.Background()

	obs := []domain.Observation{
		{SeriesID: "CUUR0000SA0", Year: 2024, Period: "M01", Value: 308.4},
		{SeriesID: "CUUR0000SA0", Year: 2024, Period: "M02", Value: 310.3},
	}

	n, err := store.UpsertObservations(ctx, "CU", obs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	obs[1].Value = 310.5
	_, err = store.UpsertObservations(ctx, "CU", obs)
	require.NoError(t, err)
	assert.Equal(t, 2, store.ObservationCount("CUUR0000SA0"))

	latest, err := store.LatestObservations(ctx, []string{"CUUR0000SA0", "CUUR0000SAF1"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "M02", latest["CUUR0000SA0"].Period)
	assert.Equal(t, 310.5, latest["CUUR0000SA0"].Value)
	assert.False(t, latest["CUUR0000SA0"].UpdatedAt.IsZero())
}

func TestDataStore_DeactivateSeries(t *testing.T) {
	store := NewDataStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSeries(ctx, []domain.Series{
		{ID: "A", SurveyCode: "CU", Active: true},
		{ID: "B", SurveyCode: "CU", Active: true},
		{ID: "C", SurveyCode: "LA", Active: true},
	}))

	n, err := store.DeactivateSeries(ctx, "CU", []string{"A", "C", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := store.ActiveSeriesIDs(ctx, "CU")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids)
}
