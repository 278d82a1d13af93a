package memory

import (
	"context"
	"sync"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// Ensure SeriesStatusStore implements the interface.
var _ driven.SeriesStatusStore = (*SeriesStatusStore)(nil)

// SeriesStatusStore is an in-memory implementation of driven.SeriesStatusStore.
type SeriesStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]domain.SeriesUpdateStatus
}

// NewSeriesStatusStore creates a new in-memory status store.
func NewSeriesStatusStore() *SeriesStatusStore {
	return &SeriesStatusStore{
		statuses: make(map[string]domain.SeriesUpdateStatus),
	}
}

// ListBySurvey returns every status row of the survey.
func (s *SeriesStatusStore) ListBySurvey(_ context.Context, surveyCode string) (map[string]domain.SeriesUpdateStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.SeriesUpdateStatus)
	for id, st := range s.statuses {
		if st.SurveyCode == surveyCode {
			out[id] = st
		}
	}
	return out, nil
}

// Upsert creates or replaces status rows.
func (s *SeriesStatusStore) Upsert(_ context.Context, statuses []domain.SeriesUpdateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range statuses {
		if st.SeriesID == "" {
			return domain.ErrInvalidInput
		}
		s.statuses[st.SeriesID] = st
	}
	return nil
}

// ResetSurvey clears is_current for every series of the survey.
func (s *SeriesStatusStore) ResetSurvey(_ context.Context, surveyCode string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.statuses {
		if st.SurveyCode == surveyCode && st.IsCurrent {
			st.IsCurrent = false
			s.statuses[id] = st
			n++
		}
	}
	return n, nil
}
