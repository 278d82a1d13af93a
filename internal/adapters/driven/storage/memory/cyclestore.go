package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// Ensure UpdateCycleStore implements the interface.
var _ driven.UpdateCycleStore = (*UpdateCycleStore)(nil)

// UpdateCycleStore is an in-memory implementation of driven.UpdateCycleStore.
// A single mutex makes every operation atomic, so the at-most-one-active and
// running-flag guarantees hold under concurrent use.
type UpdateCycleStore struct {
	mu     sync.Mutex
	cycles map[string]*domain.UpdateCycle
}

// NewUpdateCycleStore creates a new in-memory cycle store.
func NewUpdateCycleStore() *UpdateCycleStore {
	return &UpdateCycleStore{
		cycles: make(map[string]*domain.UpdateCycle),
	}
}

// Active returns the survey's active cycle, or nil.
func (s *UpdateCycleStore) Active(_ context.Context, surveyCode string) (*domain.UpdateCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.activeLocked(surveyCode); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *UpdateCycleStore) activeLocked(surveyCode string) *domain.UpdateCycle {
	for _, c := range s.cycles {
		if c.SurveyCode == surveyCode && c.IsActive() {
			return c
		}
	}
	return nil
}

// Get retrieves a cycle by ID.
func (s *UpdateCycleStore) Get(_ context.Context, id string) (*domain.UpdateCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// List returns a survey's cycles, newest first.
func (s *UpdateCycleStore) List(_ context.Context, surveyCode string, limit int) ([]domain.UpdateCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.UpdateCycle
	for _, c := range s.cycles {
		if c.SurveyCode == surveyCode {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Create inserts a new cycle.
func (s *UpdateCycleStore) Create(_ context.Context, cycle *domain.UpdateCycle) error {
	if cycle == nil || cycle.ID == "" || cycle.SurveyCode == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cycles[cycle.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if cycle.IsActive() && s.activeLocked(cycle.SurveyCode) != nil {
		return domain.ErrAlreadyExists
	}
	cp := *cycle
	s.cycles[cycle.ID] = &cp
	return nil
}

// Supersede retires an active cycle that is idle or whose run went stale.
func (s *UpdateCycleStore) Supersede(_ context.Context, id string, at, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !c.IsActive() || (c.IsRunning && !c.IsStale(staleBefore)) {
		return false, nil
	}
	c.IsRunning = false
	c.SupersededAt = at
	return true, nil
}

// TryStart claims an idle cycle, or takes over one whose run went stale.
func (s *UpdateCycleStore) TryStart(_ context.Context, id string, at, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !c.IsActive() || (c.IsRunning && !c.IsStale(staleBefore)) {
		return false, nil
	}
	c.IsRunning = true
	c.StartedAt = at
	c.HeartbeatAt = at
	return true, nil
}

// SaveProgress records the cycle's current totals and heartbeat.
func (s *UpdateCycleStore) SaveProgress(_ context.Context, id string, totalSeries, seriesUpdated int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.TotalSeries = totalSeries
	c.SeriesUpdated = seriesUpdated
	c.HeartbeatAt = at
	return nil
}

// Finish clears the running flag and optionally completes the cycle.
func (s *UpdateCycleStore) Finish(_ context.Context, id string, complete bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsRunning = false
	if complete {
		c.IsComplete = true
		c.CompletedAt = at
	}
	return nil
}
