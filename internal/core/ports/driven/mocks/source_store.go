package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockSourceStore is a mock implementation of SourceStore for testing
type MockSourceStore struct {
	mu      sync.RWMutex
	sources map[string]*domain.ContentSource
}

// NewMockSourceStore creates a store holding the given sources
func NewMockSourceStore(sources ...*domain.ContentSource) *MockSourceStore {
	m := &MockSourceStore{sources: make(map[string]*domain.ContentSource)}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	return m
}

func (m *MockSourceStore) Get(ctx context.Context, id string) (*domain.ContentSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *MockSourceStore) List(ctx context.Context) ([]*domain.ContentSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.ContentSource, 0, len(m.sources))
	for _, s := range m.sources {
		result = append(result, s)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
