package memory

import (
	"context"
	"sync"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// Ensure APIUsageStore implements the interface.
var _ driven.APIUsageStore = (*APIUsageStore)(nil)

// APIUsageStore is an in-memory append-only quota ledger.
type APIUsageStore struct {
	mu      sync.RWMutex
	entries []domain.APIUsageLogEntry
}

// NewAPIUsageStore creates a new in-memory usage store.
func NewAPIUsageStore() *APIUsageStore {
	return &APIUsageStore{}
}

// Append records a new entry.
func (s *APIUsageStore) Append(_ context.Context, entry *domain.APIUsageLogEntry) error {
	if entry == nil || entry.Date == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// SumByDate returns the total requests recorded for date.
func (s *APIUsageStore) SumByDate(_ context.Context, date string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for i := range s.entries {
		if s.entries[i].Date == date {
			total += s.entries[i].RequestsUsed
		}
	}
	return total, nil
}

// ListByDate returns the entries recorded for date, oldest first.
func (s *APIUsageStore) ListByDate(_ context.Context, date string) ([]domain.APIUsageLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.APIUsageLogEntry
	for i := range s.entries {
		if s.entries[i].Date == date {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}
