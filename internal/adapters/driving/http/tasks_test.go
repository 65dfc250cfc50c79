package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.TaskService = (*mockTaskService)(nil)

type mockTaskService struct {
	tasks map[string]*domain.Task
}

func newMockTaskService() *mockTaskService {
	return &mockTaskService{tasks: map[string]*domain.Task{}}
}

func (m *mockTaskService) SubmitSyncSource(ctx context.Context, id string) (*domain.Task, error) {
	if id != "reports" {
		return nil, domain.ErrNotFound
	}
	task := domain.NewSyncSourceTask(id, time.Now())
	m.tasks[task.ID] = task
	return task, nil
}

func (m *mockTaskService) SubmitSyncAll(ctx context.Context) (*domain.Task, error) {
	task := domain.NewSyncAllTask(time.Now())
	m.tasks[task.ID] = task
	return task, nil
}

func (m *mockTaskService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func createTaskServer(svc *mockSyncService, tasks *mockTaskService) *Server {
	s := createTestServer(svc)
	s.EnableTasks(tasks)
	return s
}

func TestHandleTriggerSync_Async(t *testing.T) {
	svc := newMockSyncService()
	svc.syncSourceFn = func(ctx context.Context, id string) (*domain.SyncResult, error) {
		t.Error("async request must not run the sync inline")
		return nil, nil
	}
	tasks := newMockTaskService()
	s := createTaskServer(svc, tasks)

	rec := do(t, s, http.MethodPost, "/api/v1/sources/reports/sync?async=true")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	task := decode[domain.Task](t, rec)
	if task.Type != domain.TaskTypeSyncSource || task.SourceID != "reports" {
		t.Errorf("unexpected task %+v", task)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/tasks/"+task.ID {
		t.Errorf("unexpected location %q", loc)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/tasks/"+task.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := decode[domain.Task](t, rec); got.Status != domain.TaskStatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/sources/missing/sync?async=1")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleSyncAll_Async(t *testing.T) {
	s := createTaskServer(newMockSyncService(), newMockTaskService())

	rec := do(t, s, http.MethodPost, "/api/v1/sync?async=true")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	if task := decode[domain.Task](t, rec); task.Type != domain.TaskTypeSyncAll {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestHandleTasks_NotEnabled(t *testing.T) {
	s := createTestServer(newMockSyncService())

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/sync?async=true"},
		{http.MethodPost, "/api/v1/sources/reports/sync?async=true"},
		{http.MethodGet, "/api/v1/tasks/abc"},
	} {
		if rec := do(t, s, req.method, req.path); rec.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: expected status 501, got %d", req.method, req.path, rec.Code)
		}
	}
}

func TestHandleGetTask_NotFound(t *testing.T) {
	s := createTaskServer(newMockSyncService(), newMockTaskService())

	if rec := do(t, s, http.MethodGet, "/api/v1/tasks/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}
