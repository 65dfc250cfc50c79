package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockSyncStateStore keeps sync states in memory and remembers every saved status,
// so tests can follow a source through running, completed, failed and halted.
type MockSyncStateStore struct {
	mu       sync.RWMutex
	states   map[string]*domain.SyncState
	statuses map[string][]domain.SyncStatus

	SaveErr error
}

// NewMockSyncStateStore creates a new MockSyncStateStore
func NewMockSyncStateStore() *MockSyncStateStore {
	return &MockSyncStateStore{
		states:   make(map[string]*domain.SyncState),
		statuses: make(map[string][]domain.SyncStatus),
	}
}

func (m *MockSyncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (m *MockSyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.SourceID] = &cp
	m.statuses[state.SourceID] = append(m.statuses[state.SourceID], state.Status)
	return nil
}

func (m *MockSyncStateStore) List(ctx context.Context) ([]*domain.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.SyncState, 0, len(m.states))
	for _, state := range m.states {
		cp := *state
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SourceID < result[j].SourceID })
	return result, nil
}

func (m *MockSyncStateStore) Delete(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sourceID)
	return nil
}

// Helper methods for testing

// Statuses returns every status saved for a source, oldest first.
func (m *MockSyncStateStore) Statuses(sourceID string) []domain.SyncStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SyncStatus, len(m.statuses[sourceID]))
	copy(out, m.statuses[sourceID])
	return out
}

func (m *MockSyncStateStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
