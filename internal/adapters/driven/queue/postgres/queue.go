package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

const taskColumns = `id, type, source_id, status, attempts, max_attempts, error, run_id,
	created_at, updated_at, scheduled_for, started_at, completed_at`

// Queue implements TaskQueue on the sync_tasks table, handing tasks out with
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never share one.
// The table is created by the record store schema.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueue creates a new PostgreSQL-backed task queue.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Enqueue adds a task to the queue
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	if err := task.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO sync_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := q.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.SourceID,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.Error,
		task.RunID,
		task.CreatedAt,
		task.UpdatedAt,
		task.ScheduledFor,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Dequeue claims the oldest due pending task. When none is due it waits once
// for wait and tries again.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*domain.Task, error) {
	task, err := q.dequeue(ctx)
	if err != nil || task != nil || wait <= 0 {
		return task, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
	}
	return q.dequeue(ctx)
}

func (q *Queue) dequeue(ctx context.Context) (*domain.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := q.now().UTC()
	selectQuery := `SELECT ` + taskColumns + ` FROM sync_tasks
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	task, err := scanTask(tx.QueryRowContext(ctx, selectQuery, domain.TaskStatusPending, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}

	task.MarkProcessing(now)
	updateQuery := `UPDATE sync_tasks
		SET status = $1, started_at = $2, updated_at = $3, attempts = $4
		WHERE id = $5`
	if _, err := tx.ExecContext(ctx, updateQuery, task.Status, *task.StartedAt, task.UpdatedAt, task.Attempts, task.ID); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return task, nil
}

// Ack marks a task as completed
func (q *Queue) Ack(ctx context.Context, taskID, runID string) error {
	now := q.now().UTC()
	query := `UPDATE sync_tasks
		SET status = $1, completed_at = $2, updated_at = $2, error = '', run_id = $3
		WHERE id = $4`
	return q.update(ctx, query, domain.TaskStatusCompleted, now, runID, taskID)
}

// Nack schedules a retry with exponential backoff, or marks the task failed
// once its attempts are exhausted.
func (q *Queue) Nack(ctx context.Context, taskID, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !task.CanRetry() {
		return q.Fail(ctx, taskID, reason)
	}

	task.Retry(reason, q.now())
	query := `UPDATE sync_tasks
		SET status = $1, error = $2, updated_at = $3, scheduled_for = $4
		WHERE id = $5`
	return q.update(ctx, query, task.Status, reason, task.UpdatedAt, task.ScheduledFor, taskID)
}

// Fail marks a task failed without further attempts
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	now := q.now().UTC()
	query := `UPDATE sync_tasks
		SET status = $1, error = $2, completed_at = $3, updated_at = $3
		WHERE id = $4`
	return q.update(ctx, query, domain.TaskStatusFailed, reason, now, taskID)
}

// GetTask retrieves a task by ID
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks WHERE id = $1`

	task, err := scanTask(q.db.QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// Ping checks if the queue backend is healthy
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q *Queue) update(ctx context.Context, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var task domain.Task
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.SourceID,
		&task.Status,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&task.RunID,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.ScheduledFor,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
