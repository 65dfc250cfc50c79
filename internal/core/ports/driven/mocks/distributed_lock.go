package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDistributedLock is an in-memory DistributedLock.
// It keeps a log of acquisitions and extensions so tests can check which
// scheduler and source locks were taken, and for how long.
type MockDistributedLock struct {
	mu       sync.Mutex
	expiry   map[string]time.Time
	acquired []string
	extended map[string]int

	PingErr error
}

// NewMockDistributedLock creates a new MockDistributedLock
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		expiry:   make(map[string]time.Time),
		extended: make(map[string]int),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.heldLocked(name) {
		return false, nil
	}
	m.expiry[name] = time.Now().Add(ttl)
	m.acquired = append(m.acquired, name)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expiry, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.heldLocked(name) {
		return fmt.Errorf("lock %s not held", name)
	}
	m.expiry[name] = time.Now().Add(ttl)
	m.extended[name]++
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockDistributedLock) heldLocked(name string) bool {
	until, ok := m.expiry[name]
	return ok && time.Now().Before(until)
}

// Helper methods for testing

// SetLockHeld makes name look held by another instance for ttl.
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[name] = time.Now().Add(ttl)
}

// IsHeld reports whether name is currently held.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(name)
}

// Acquired returns the names of all successful acquisitions in order.
func (m *MockDistributedLock) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.acquired))
	copy(out, m.acquired)
	return out
}

// Extensions returns how often name was extended.
func (m *MockDistributedLock) Extensions(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extended[name]
}
