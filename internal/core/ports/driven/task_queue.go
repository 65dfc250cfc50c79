package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// TaskQueue holds sync requests for background workers.
type TaskQueue interface {
	// Enqueue adds a pending task
	Enqueue(ctx context.Context, task *domain.Task) error

	// Dequeue hands the next due task to the caller, marked processing.
	// It waits up to wait for one and returns nil, nil when none arrived.
	Dequeue(ctx context.Context, wait time.Duration) (*domain.Task, error)

	// Ack marks a task completed; runID links it to the run it produced
	Ack(ctx context.Context, taskID, runID string) error

	// Nack returns a task to the queue with backoff, or fails it once its
	// attempts are exhausted
	Nack(ctx context.Context, taskID, reason string) error

	// Fail marks a task failed without further attempts
	Fail(ctx context.Context, taskID, reason string) error

	// GetTask retrieves a task by ID (domain.ErrNotFound when unknown)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// Ping checks if the queue backend is healthy
	Ping(ctx context.Context) error
}
