package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// Ensure SentinelStore implements both sentinel interfaces.
var (
	_ driven.SentinelStore  = (*SentinelStore)(nil)
	_ driven.FreshnessStore = (*SentinelStore)(nil)
)

// SentinelStore is an in-memory sentinel sample and freshness aggregate store.
type SentinelStore struct {
	mu        sync.RWMutex
	sentinels map[string][]domain.SurveySentinel
	freshness map[string]domain.SurveyFreshness
}

// NewSentinelStore creates a new in-memory sentinel store.
func NewSentinelStore() *SentinelStore {
	return &SentinelStore{
		sentinels: make(map[string][]domain.SurveySentinel),
		freshness: make(map[string]domain.SurveyFreshness),
	}
}

// ReplaceSentinels swaps the survey's sample for a new one.
func (s *SentinelStore) ReplaceSentinels(_ context.Context, surveyCode string, sentinels []domain.SurveySentinel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]domain.SurveySentinel, len(sentinels))
	copy(cp, sentinels)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Position < cp[j].Position })
	s.sentinels[surveyCode] = cp
	return nil
}

// ListSentinels returns the survey's sample ordered by position.
func (s *SentinelStore) ListSentinels(_ context.Context, surveyCode string) ([]domain.SurveySentinel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.sentinels[surveyCode]
	out := make([]domain.SurveySentinel, len(src))
	copy(out, src)
	return out, nil
}

// SaveSentinels updates existing sentinels after a check.
func (s *SentinelStore) SaveSentinels(_ context.Context, sentinels []domain.SurveySentinel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, updated := range sentinels {
		list := s.sentinels[updated.SurveyCode]
		found := false
		for i := range list {
			if list[i].SeriesID == updated.SeriesID {
				list[i] = updated
				found = true
				break
			}
		}
		if !found {
			return domain.ErrNotFound
		}
	}
	return nil
}

// GetFreshness returns the survey's aggregate.
func (s *SentinelStore) GetFreshness(_ context.Context, surveyCode string) (*domain.SurveyFreshness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.freshness[surveyCode]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

// ListFreshness returns every aggregate ordered by survey code.
func (s *SentinelStore) ListFreshness(_ context.Context) ([]domain.SurveyFreshness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SurveyFreshness, 0, len(s.freshness))
	for _, f := range s.freshness {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurveyCode < out[j].SurveyCode })
	return out, nil
}

// SaveCheck writes the change-signal fields of f.
func (s *SentinelStore) SaveCheck(_ context.Context, f *domain.SurveyFreshness) error {
	if f == nil || f.SurveyCode == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.freshness[f.SurveyCode]
	cur.SurveyCode = f.SurveyCode
	cur.LastDetectedChange = f.LastDetectedChange
	cur.LastCheckedAt = f.LastCheckedAt
	cur.NeedsFullUpdate = f.NeedsFullUpdate
	cur.SentinelsTotal = f.SentinelsTotal
	cur.SentinelsChanged = f.SentinelsChanged
	cur.UpdateFrequencyDays = f.UpdateFrequencyDays
	cur.CheckCount = f.CheckCount
	cur.DetectCount = f.DetectCount
	cur.LatestUpstream = f.LatestUpstream
	cur.LatestStored = f.LatestStored
	s.freshness[f.SurveyCode] = cur
	return nil
}

// SaveProgress writes the cycle progress mirror.
func (s *SentinelStore) SaveProgress(_ context.Context, surveyCode string, inProgress bool, total, updated int, completedAt time.Time) error {
	if surveyCode == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.freshness[surveyCode]
	cur.SurveyCode = surveyCode
	cur.FullUpdateInProgress = inProgress
	cur.SeriesTotalCount = total
	cur.SeriesUpdatedCount = updated
	if !completedAt.IsZero() {
		cur.NeedsFullUpdate = false
		cur.LastFullUpdateAt = completedAt
	}
	s.freshness[surveyCode] = cur
	return nil
}
