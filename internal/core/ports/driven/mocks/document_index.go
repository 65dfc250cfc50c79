package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockDocumentIndex is an in-memory DocumentIndex for testing.
// It applies cleanup scopes the same way the real adapters build their queries.
type MockDocumentIndex struct {
	mu      sync.RWMutex
	indices map[string]map[string]*domain.IndexDocument
	writes  int

	UpsertFn         func(index string, doc *domain.IndexDocument) (string, error)
	MarkStaleFn      func(index string, scope domain.OutdatedScope) (int, error)
	DeleteOutdatedFn func(index string, scope domain.OutdatedScope) (int, error)
	HealthFn         func() error
}

// NewMockDocumentIndex creates a new MockDocumentIndex
func NewMockDocumentIndex() *MockDocumentIndex {
	return &MockDocumentIndex{
		indices: make(map[string]map[string]*domain.IndexDocument),
	}
}

func (m *MockDocumentIndex) Upsert(ctx context.Context, index string, doc *domain.IndexDocument) (string, error) {
	if m.UpsertFn != nil {
		if id, err := m.UpsertFn(index, doc); err != nil || id != "" {
			return id, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.indices[index]
	if !ok {
		docs = make(map[string]*domain.IndexDocument)
		m.indices[index] = docs
	}
	cp := *doc
	docs[doc.ID] = &cp
	m.writes++
	return doc.ID, nil
}

func (m *MockDocumentIndex) Get(ctx context.Context, index, id string) (*domain.IndexDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.indices[index][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockDocumentIndex) MarkStale(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if m.MarkStaleFn != nil {
		return m.MarkStaleFn(index, scope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, doc := range m.indices[index] {
		if matchesScope(doc, scope) {
			doc.Stale = true
			m.writes++
			n++
		}
	}
	return n, nil
}

func (m *MockDocumentIndex) DeleteOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if m.DeleteOutdatedFn != nil {
		return m.DeleteOutdatedFn(index, scope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, doc := range m.indices[index] {
		if matchesScope(doc, scope) {
			delete(m.indices[index], id)
			m.writes++
			n++
		}
	}
	return n, nil
}

func (m *MockDocumentIndex) CountBySource(ctx context.Context, index, sourceID string, currentOnly bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, doc := range m.indices[index] {
		if doc.SourceID == sourceID && (!currentOnly || !doc.Stale) {
			n++
		}
	}
	return n, nil
}

func (m *MockDocumentIndex) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn()
	}
	return nil
}

func matchesScope(doc *domain.IndexDocument, scope domain.OutdatedScope) bool {
	if doc.SourceID != scope.SourceID || !doc.Timestamp.Before(scope.Before) {
		return false
	}
	if len(scope.ItemKeys) == 0 {
		return true
	}
	for _, key := range scope.ItemKeys {
		if doc.ItemKey == key {
			return true
		}
	}
	return false
}

// Helper methods for testing

// Writes returns the number of document writes (upserts, stale marks, deletes).
func (m *MockDocumentIndex) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Documents returns a copy of all documents of an index.
func (m *MockDocumentIndex) Documents(index string) []*domain.IndexDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.IndexDocument, 0, len(m.indices[index]))
	for _, doc := range m.indices[index] {
		cp := *doc
		out = append(out, &cp)
	}
	return out
}

// Seed inserts a document without counting it as a write.
func (m *MockDocumentIndex) Seed(index string, doc *domain.IndexDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indices[index] == nil {
		m.indices[index] = make(map[string]*domain.IndexDocument)
	}
	cp := *doc
	m.indices[index][doc.ID] = &cp
}
