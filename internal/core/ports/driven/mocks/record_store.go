package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockVersionStore is a mock implementation of VersionStore for testing
type MockVersionStore struct {
	mu       sync.RWMutex
	versions map[string]*domain.VersionInfo
}

// NewMockVersionStore creates a new MockVersionStore
func NewMockVersionStore() *MockVersionStore {
	return &MockVersionStore{
		versions: make(map[string]*domain.VersionInfo),
	}
}

func (m *MockVersionStore) Get(ctx context.Context, sourceID string) (*domain.VersionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.versions[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (m *MockVersionStore) Save(ctx context.Context, info *domain.VersionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *info
	m.versions[info.SourceID] = &cp
	return nil
}

func (m *MockVersionStore) Delete(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, sourceID)
	return nil
}

// MockProcessingStore is a mock implementation of ProcessingStore for testing
type MockProcessingStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProcessingRecord
	history []domain.ProcessingStatus

	SaveFn func(rec *domain.ProcessingRecord) error
}

// NewMockProcessingStore creates a new MockProcessingStore
func NewMockProcessingStore() *MockProcessingStore {
	return &MockProcessingStore{
		records: make(map[string]*domain.ProcessingRecord),
	}
}

func processingKey(sourceID, urlHash string) string {
	return sourceID + "/" + urlHash
}

func (m *MockProcessingStore) Get(ctx context.Context, sourceID, urlHash string) (*domain.ProcessingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[processingKey(sourceID, urlHash)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockProcessingStore) Save(ctx context.Context, rec *domain.ProcessingRecord) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[processingKey(rec.SourceID, rec.URLHash)] = &cp
	m.history = append(m.history, rec.Status)
	return nil
}

func (m *MockProcessingStore) ListBySource(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.ProcessingRecord
	for _, rec := range m.records {
		if rec.SourceID == sourceID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URLHash < result[j].URLHash })
	return result, nil
}

func (m *MockProcessingStore) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if rec.SourceID == sourceID {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *MockProcessingStore) Ping(ctx context.Context) error {
	return nil
}

// History returns every status saved, in order.
func (m *MockProcessingStore) History() []domain.ProcessingStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ProcessingStatus, len(m.history))
	copy(out, m.history)
	return out
}
