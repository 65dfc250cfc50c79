package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockBlobStore keeps uploaded payloads in memory
type MockBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	attempts map[string]int

	PutFn func(payload *domain.UploadPayload, attempt int) error
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		objects:  make(map[string][]byte),
		attempts: make(map[string]int),
	}
}

func (m *MockBlobStore) Put(ctx context.Context, payload *domain.UploadPayload) error {
	m.mu.Lock()
	m.attempts[payload.Key]++
	attempt := m.attempts[payload.Key]
	m.mu.Unlock()

	if m.PutFn != nil {
		if err := m.PutFn(payload, attempt); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[payload.Key] = append([]byte(nil), payload.Body...)
	return nil
}

func (m *MockBlobStore) Ping(ctx context.Context) error {
	return nil
}

// Object returns a stored object.
func (m *MockBlobStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Attempts returns how many times key was put.
func (m *MockBlobStore) Attempts(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[key]
}
