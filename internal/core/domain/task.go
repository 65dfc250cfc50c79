package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies a queued sync request
type TaskType string

const (
	// TaskTypeSyncSource runs one cycle of a single source
	TaskTypeSyncSource TaskType = "sync_source"
	// TaskTypeSyncAll runs every enabled source
	TaskTypeSyncAll TaskType = "sync_all"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// DefaultTaskMaxAttempts bounds how often a task is handed to a worker.
const DefaultTaskMaxAttempts = 3

const maxTaskBackoff = 5 * time.Minute

// Task is a sync request queued for a background worker.
type Task struct {
	ID       string     `json:"id"`
	Type     TaskType   `json:"type"`
	SourceID string     `json:"source_id,omitempty"`
	Status   TaskStatus `json:"status"`

	// Attempts counts how often a worker picked the task up
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	// RunID links a finished task to the summary or result it produced
	RunID string `json:"run_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending task ready to run at now.
func NewTask(taskType TaskType, sourceID string, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:           uuid.NewString(),
		Type:         taskType,
		SourceID:     sourceID,
		Status:       TaskStatusPending,
		MaxAttempts:  DefaultTaskMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewSyncSourceTask creates a task to sync one source
func NewSyncSourceTask(sourceID string, now time.Time) *Task {
	return NewTask(TaskTypeSyncSource, sourceID, now)
}

// NewSyncAllTask creates a task to sync all sources
func NewSyncAllTask(now time.Time) *Task {
	return NewTask(TaskTypeSyncAll, "", now)
}

// Validate checks the task can be handed to a worker.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	switch t.Type {
	case TaskTypeSyncSource:
		if t.SourceID == "" {
			return fmt.Errorf("%w: sync_source task requires a source id", ErrInvalidInput)
		}
	case TaskTypeSyncAll:
	default:
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, t.Type)
	}
	return nil
}

// CanRetry reports whether another attempt is allowed
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsTerminal reports whether the task reached completed or failed
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// MarkProcessing records a worker picking the task up
func (t *Task) MarkProcessing(now time.Time) {
	now = now.UTC()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted records a successful run
func (t *Task) MarkCompleted(runID string, now time.Time) {
	now = now.UTC()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
	t.RunID = runID
}

// MarkFailed records a terminal failure
func (t *Task) MarkFailed(reason string, now time.Time) {
	now = now.UTC()
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = reason
}

// Retry returns the task to pending with exponential backoff: 2s, 4s, 8s, capped at 5m.
func (t *Task) Retry(reason string, now time.Time) {
	now = now.UTC()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = reason
	t.ScheduledFor = now.Add(TaskBackoff(t.Attempts))
}

// TaskBackoff is the delay before the attempt following attempts.
func TaskBackoff(attempts int) time.Duration {
	if attempts > 8 {
		return maxTaskBackoff
	}
	backoff := time.Duration(1<<attempts) * time.Second
	if backoff > maxTaskBackoff {
		backoff = maxTaskBackoff
	}
	return backoff
}
