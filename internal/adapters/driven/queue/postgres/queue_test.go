package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var taskRowColumns = []string{
	"id", "type", "source_id", "status", "attempts", "max_attempts", "error", "run_id",
	"created_at", "updated_at", "scheduled_for", "started_at", "completed_at",
}

func createTestQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	q := NewQueue(db)
	q.now = func() time.Time { return fixedNow }
	return q, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func pendingRow(id string, attempts, maxAttempts int) *sqlmock.Rows {
	return sqlmock.NewRows(taskRowColumns).AddRow(
		id, "sync_source", "reports", "pending", attempts, maxAttempts, "", "",
		fixedNow, fixedNow, fixedNow, nil, nil,
	)
}

func TestQueue_Enqueue(t *testing.T) {
	q, mock := createTestQueue(t)
	task := domain.NewSyncSourceTask("reports", fixedNow)

	mock.ExpectExec("INSERT INTO sync_tasks").
		WithArgs(task.ID, task.Type, "reports", task.Status, 0, domain.DefaultTaskMaxAttempts, "", "",
			task.CreatedAt, task.UpdatedAt, task.ScheduledFor, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestQueue_EnqueueInvalid(t *testing.T) {
	q, mock := createTestQueue(t)

	err := q.Enqueue(context.Background(), &domain.Task{ID: "t1", Type: domain.TaskTypeSyncSource})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestQueue_Dequeue(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sync_tasks (.+) FOR UPDATE SKIP LOCKED").
		WithArgs(domain.TaskStatusPending, fixedNow).
		WillReturnRows(pendingRow("t1", 0, 3))
	mock.ExpectExec("UPDATE sync_tasks").
		WithArgs(domain.TaskStatusProcessing, fixedNow, fixedNow, 1, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	task, err := q.Dequeue(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task == nil || task.ID != "t1" {
		t.Fatalf("expected task t1, got %+v", task)
	}
	if task.Status != domain.TaskStatusProcessing || task.Attempts != 1 {
		t.Errorf("unexpected task state: %+v", task)
	}
	expectationsMet(t, mock)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sync_tasks").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	task, err := q.Dequeue(context.Background(), 0)
	if err != nil || task != nil {
		t.Errorf("expected nil, nil; got %+v, %v", task, err)
	}
	expectationsMet(t, mock)
}

func TestQueue_DequeueCancelledWhileWaiting(t *testing.T) {
	q, mock := createTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sync_tasks").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	task, err := q.Dequeue(ctx, time.Hour)
	if err != nil || task != nil {
		t.Errorf("expected nil, nil; got %+v, %v", task, err)
	}
}

func TestQueue_Ack(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectExec("UPDATE sync_tasks").
		WithArgs(domain.TaskStatusCompleted, fixedNow, "run-1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := q.Ack(context.Background(), "t1", "run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("UPDATE sync_tasks").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := q.Ack(context.Background(), "missing", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestQueue_NackRetries(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectQuery("SELECT (.+) FROM sync_tasks WHERE id").
		WithArgs("t1").
		WillReturnRows(pendingRow("t1", 1, 3))
	mock.ExpectExec("UPDATE sync_tasks").
		WithArgs(domain.TaskStatusPending, "busy", fixedNow, fixedNow.Add(2*time.Second), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.Nack(context.Background(), "t1", "busy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestQueue_NackExhausted(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectQuery("SELECT (.+) FROM sync_tasks WHERE id").
		WithArgs("t1").
		WillReturnRows(pendingRow("t1", 3, 3))
	mock.ExpectExec("UPDATE sync_tasks").
		WithArgs(domain.TaskStatusFailed, "busy", fixedNow, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.Nack(context.Background(), "t1", "busy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestQueue_GetTaskNotFound(t *testing.T) {
	q, mock := createTestQueue(t)

	mock.ExpectQuery("SELECT (.+) FROM sync_tasks WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := q.GetTask(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}
