package storage

import (
	"context"
	"sync"

	"github.com/freshness-monitor/backend/internal/models"
)

// MemoryStore keeps the newest results in memory. It is used when
// persistence is disabled.
type MemoryStore struct {
	mu      sync.RWMutex
	results []*models.Result
	limit   int
}

// NewMemoryStore creates a store that retains at most limit results.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryStore{
		results: make([]*models.Result, 0, limit),
		limit:   limit,
	}
}

func (s *MemoryStore) Append(_ context.Context, result *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) == s.limit {
		copy(s.results, s.results[1:])
		s.results = s.results[:len(s.results)-1]
	}
	s.results = append(s.results, result)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.results) == 0 {
		return nil, ErrNotFound
	}
	return s.results[len(s.results)-1], nil
}

func (s *MemoryStore) History(_ context.Context, limit int) ([]*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.results)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.Result, 0, n)
	for i := len(s.results) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.results[i])
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
