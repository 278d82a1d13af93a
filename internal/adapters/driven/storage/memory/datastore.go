package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// Ensure DataStore implements the interface.
var _ driven.DataStore = (*DataStore)(nil)

// DataStore is an in-memory observation warehouse and series catalog.
type DataStore struct {
	mu           sync.RWMutex
	series       map[string]domain.Series
	observations map[string]map[domain.Period]domain.Observation
	now          func() time.Time
}

// NewDataStore creates a new in-memory data store.
func NewDataStore() *DataStore {
	return &DataStore{
		series:       make(map[string]domain.Series),
		observations: make(map[string]map[domain.Period]domain.Observation),
		now:          time.Now,
	}
}

// UpsertObservations inserts or updates observations by key.
func (s *DataStore) UpsertObservations(_ context.Context, _ string, obs []domain.Observation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, o := range obs {
		if o.SeriesID == "" {
			return 0, domain.ErrInvalidInput
		}
		rows, ok := s.observations[o.SeriesID]
		if !ok {
			rows = make(map[domain.Period]domain.Observation)
			s.observations[o.SeriesID] = rows
		}
		o.UpdatedAt = now
		rows[o.Key()] = o
	}
	return len(obs), nil
}

// ActiveSeriesIDs returns the sorted ids of active series.
func (s *DataStore) ActiveSeriesIDs(_ context.Context, surveyCode string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, sr := range s.series {
		if sr.SurveyCode == surveyCode && sr.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LatestObservations returns the newest stored observation per series.
func (s *DataStore) LatestObservations(_ context.Context, seriesIDs []string) (map[string]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Observation
	for _, id := range seriesIDs {
		for _, o := range s.observations[id] {
			all = append(all, o)
		}
	}
	return domain.LatestBySeries(all), nil
}

// SaveSeries creates or updates catalog entries.
func (s *DataStore) SaveSeries(_ context.Context, series []domain.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sr := range series {
		if sr.ID == "" || sr.SurveyCode == "" {
			return domain.ErrInvalidInput
		}
		s.series[sr.ID] = sr
	}
	return nil
}

// DeactivateSeries marks series as no longer tracked.
func (s *DataStore) DeactivateSeries(_ context.Context, surveyCode string, seriesIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range seriesIDs {
		sr, ok := s.series[id]
		if !ok || sr.SurveyCode != surveyCode || !sr.Active {
			continue
		}
		sr.Active = false
		s.series[id] = sr
		n++
	}
	return n, nil
}

// ObservationCount returns the number of stored observations for a series.
func (s *DataStore) ObservationCount(seriesID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations[seriesID])
}
