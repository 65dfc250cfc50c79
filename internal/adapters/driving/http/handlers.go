package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

const readyTimeout = 5 * time.Second

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReadyResponse reports every readiness dependency
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SourceDetail is a source with its sync state and stored version
type SourceDetail struct {
	Source  *domain.ContentSource `json:"source"`
	State   *domain.SyncState     `json:"state"`
	Version *domain.VersionInfo   `json:"version,omitempty"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the document index, the record store and the lock backend
// @Tags         Health
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleSwagger serves the registered OpenAPI document.
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api documentation is not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Source endpoints

// handleListSources godoc
// @Summary      List sources
// @Tags         Sources
// @Success      200  {array}  domain.ContentSource
// @Router       /api/v1/sources [get]
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.syncService.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// handleGetSource godoc
// @Summary      Get source
// @Description  Returns the source with its sync state and stored version
// @Tags         Sources
// @Success      200  {object}  SourceDetail
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/sources/{id} [get]
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	source, err := s.syncService.GetSource(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get source")
		return
	}
	state, err := s.syncService.GetSyncState(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get sync state")
		return
	}
	version, err := s.syncService.GetVersion(r.Context(), id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeServiceError(w, err, "failed to get version")
		return
	}
	writeJSON(w, http.StatusOK, SourceDetail{Source: source, State: state, Version: version})
}

// handleListItems godoc
// @Summary      List processing records of a listing source
// @Tags         Sources
// @Success      200  {array}  domain.ProcessingRecord
// @Router       /api/v1/sources/{id}/items [get]
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	records, err := s.syncService.ListItems(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to list items")
		return
	}
	if records == nil {
		records = []*domain.ProcessingRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleListSyncStates godoc
// @Summary      List sync states
// @Tags         Sync
// @Success      200  {array}  domain.SyncState
// @Router       /api/v1/sources/sync-states [get]
func (s *Server) handleListSyncStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.syncService.ListSyncStates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sync states")
		return
	}
	if states == nil {
		states = []*domain.SyncState{}
	}
	writeJSON(w, http.StatusOK, states)
}

// Sync endpoints

// handleTriggerSync godoc
// @Summary      Sync one source now
// @Description  Runs one cycle and returns its result. 409 when the source is running, halted or disabled.
// @Description  With async=true the sync is queued and the task is returned instead.
// @Tags         Sync
// @Param        async  query     bool  false  "Queue the sync"
// @Success      200    {object}  domain.SyncResult
// @Success      202    {object}  domain.Task
// @Failure      409    {object}  domain.SyncResult
// @Router       /api/v1/sources/{id}/sync [post]
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if async(r) {
		s.submitTask(w, r, func(ctx context.Context) (*domain.Task, error) {
			return s.taskService.SubmitSyncSource(ctx, id)
		})
		return
	}
	// a dropped client connection must not abort a cycle halfway
	ctx := context.WithoutCancel(r.Context())

	result, err := s.syncService.SyncSource(ctx, id)
	if err != nil {
		status := statusFor(err)
		if result == nil || status == http.StatusNotFound {
			writeServiceError(w, err, "sync failed")
			return
		}
		writeJSON(w, status, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResume godoc
// @Summary      Resume a halted source
// @Tags         Sync
// @Success      200  {object}  domain.SyncState
// @Router       /api/v1/sources/{id}/resume [post]
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	state, err := s.syncService.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to resume source")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleReset godoc
// @Summary      Reset a source
// @Description  Forgets the stored version, processing records and sync state so the next cycle reprocesses everything.
// @Description  409 when the source is running.
// @Tags         Sync
// @Param        id   path      string  true  "Source ID"
// @Success      200  {object}  domain.SyncState
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /api/v1/sources/{id}/reset [post]
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	state, err := s.syncService.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to reset source")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSyncAll godoc
// @Summary      Sync all enabled sources
// @Tags         Sync
// @Param        async  query     bool  false  "Queue the sync"
// @Success      200    {object}  domain.SyncSummary
// @Success      202    {object}  domain.Task
// @Router       /api/v1/sync [post]
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if async(r) {
		s.submitTask(w, r, func(ctx context.Context) (*domain.Task, error) {
			return s.taskService.SubmitSyncAll(ctx)
		})
		return
	}
	summary, err := s.syncService.SyncAll(context.WithoutCancel(r.Context()))
	if err != nil {
		writeServiceError(w, err, "sync run failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCircuits godoc
// @Summary      Circuit breaker snapshot
// @Tags         Sync
// @Success      200  {array}  domain.CircuitSnapshot
// @Router       /api/v1/circuits [get]
func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	circuits := s.syncService.Circuits()
	if circuits == nil {
		circuits = []domain.CircuitSnapshot{}
	}
	writeJSON(w, http.StatusOK, circuits)
}

// Task endpoints

// handleGetTask godoc
// @Summary      Get a queued sync task
// @Tags         Tasks
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Failure      501  {object}  ErrorResponse
// @Router       /api/v1/tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.taskService == nil {
		writeError(w, http.StatusNotImplemented, "async sync is not enabled")
		return
	}
	task, err := s.taskService.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// submitTask queues a sync and answers 202 with the task.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request, submit func(ctx context.Context) (*domain.Task, error)) {
	if s.taskService == nil {
		writeError(w, http.StatusNotImplemented, "async sync is not enabled")
		return
	}
	task, err := submit(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to queue sync")
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

// Helper functions

func async(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("async"))
	return err == nil && v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSyncInProgress), errors.Is(err, domain.ErrSourceHalted), errors.Is(err, domain.ErrSourceDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
