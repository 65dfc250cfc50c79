package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockTaskQueue is an in-memory TaskQueue for testing. Dequeue hands out
// pending tasks in enqueue order and ignores ScheduledFor.
type MockTaskQueue struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	EnqueueErr error
	DequeueErr error
	PingErr    error
}

// NewMockTaskQueue creates a new MockTaskQueue
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{tasks: make(map[string]*domain.Task)}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	if err := task.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	m.order = append(m.order, task.ID)
	return nil
}

func (m *MockTaskQueue) Dequeue(ctx context.Context, wait time.Duration) (*domain.Task, error) {
	if m.DequeueErr != nil {
		return nil, m.DequeueErr
	}
	m.mu.Lock()
	for _, id := range m.order {
		task := m.tasks[id]
		if task.Status == domain.TaskStatusPending {
			task.MarkProcessing(time.Now())
			cp := *task
			m.mu.Unlock()
			return &cp, nil
		}
	}
	m.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return nil, nil
}

func (m *MockTaskQueue) Ack(ctx context.Context, taskID, runID string) error {
	return m.update(taskID, func(t *domain.Task) { t.MarkCompleted(runID, time.Now()) })
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID, reason string) error {
	return m.update(taskID, func(t *domain.Task) {
		if t.CanRetry() {
			t.Retry(reason, time.Now())
			return
		}
		t.MarkFailed(reason, time.Now())
	})
}

func (m *MockTaskQueue) Fail(ctx context.Context, taskID, reason string) error {
	return m.update(taskID, func(t *domain.Task) { t.MarkFailed(reason, time.Now()) })
}

func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockTaskQueue) update(taskID string, fn func(*domain.Task)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(task)
	return nil
}

// Helper methods for testing

// Tasks returns copies of all tasks in enqueue order
func (m *MockTaskQueue) Tasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Task, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.tasks[id]
		out = append(out, &cp)
	}
	return out
}
