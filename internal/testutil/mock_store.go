// mock_store.go - Mock result store for testing
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/freshness-monitor/backend/internal/storage"
)

// ErrMockFailure is returned by MockStore when failures are switched on.
var ErrMockFailure = errors.New("mock store failure")

// MockStore implements storage.Store for testing
type MockStore struct {
	mu      sync.RWMutex
	results []*models.Result
	fail    bool
	closed  bool
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Append(_ context.Context, result *models.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrMockFailure
	}
	m.results = append(m.results, result)
	return nil
}

func (m *MockStore) Latest(_ context.Context) (*models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail {
		return nil, ErrMockFailure
	}
	if len(m.results) == 0 {
		return nil, storage.ErrNotFound
	}
	return m.results[len(m.results)-1], nil
}

func (m *MockStore) History(_ context.Context, limit int) ([]*models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail {
		return nil, ErrMockFailure
	}
	var out []*models.Result
	for i := len(m.results) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.results[i])
	}
	return out, nil
}

func (m *MockStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail {
		return 0, ErrMockFailure
	}
	return len(m.results), nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockStore implements storage.Store
var _ storage.Store = (*MockStore)(nil)

// Test Helper Methods

// SetFailing makes every subsequent call return ErrMockFailure.
func (m *MockStore) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// AddResult stores a result directly, bypassing failure injection.
func (m *MockStore) AddResult(result *models.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

// Results returns a copy of everything stored, oldest first.
func (m *MockStore) Results() []*models.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.Result(nil), m.results...)
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// RecordingSink collects every result published to it.
type RecordingSink struct {
	mu      sync.Mutex
	results []*models.Result
	err     error
}

// NewRecordingSink creates a sink that returns err from every Publish.
func NewRecordingSink(err error) *RecordingSink {
	return &RecordingSink{err: err}
}

func (s *RecordingSink) Publish(_ context.Context, result *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return s.err
}

// Results returns what was published, in order.
func (s *RecordingSink) Results() []*models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Result(nil), s.results...)
}
