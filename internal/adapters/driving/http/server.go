package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Check is one named readiness dependency.
type Check struct {
	Name   string
	Pinger Pinger
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	syncService driving.SyncService
	taskService driving.TaskService
	auth        *AuthMiddleware
	metrics     http.Handler
	checks      []Check
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	// WriteTimeout bounds synchronous sync requests as well
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		Version:      "dev",
		WriteTimeout: 30 * time.Minute,
	}
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg Config, syncService driving.SyncService, metrics http.Handler, checks ...Check) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      cfg.Logger,
		syncService: syncService,
		metrics:     metrics,
		checks:      checks,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwagger)

	// Source endpoints
	s.router.HandleFunc("GET /api/v1/sources", s.handleListSources)
	s.router.HandleFunc("GET /api/v1/sources/sync-states", s.handleListSyncStates)
	s.router.HandleFunc("GET /api/v1/sources/{id}", s.handleGetSource)
	s.router.HandleFunc("GET /api/v1/sources/{id}/items", s.handleListItems)

	// Sync endpoints
	s.router.Handle("POST /api/v1/sources/{id}/sync", s.protected(s.handleTriggerSync))
	s.router.Handle("POST /api/v1/sources/{id}/resume", s.protected(s.handleResume))
	s.router.Handle("POST /api/v1/sources/{id}/reset", s.protected(s.handleReset))
	s.router.Handle("POST /api/v1/sync", s.protected(s.handleSyncAll))
	s.router.HandleFunc("GET /api/v1/circuits", s.handleCircuits)

	// Task endpoints
	s.router.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
}

// EnableAuth requires API credentials on every endpoint that starts, resumes
// or resets a sync. Read endpoints stay open.
func (s *Server) EnableAuth(authenticator driving.Authenticator) {
	s.auth = NewAuthMiddleware(authenticator, s.logger)
}

// protected defers to the auth middleware when auth is enabled.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			h(w, r)
			return
		}
		s.auth.Handler(h).ServeHTTP(w, r)
	})
}

// EnableTasks lets the sync endpoints queue work with ?async=true.
// Without it those requests answer 501.
func (s *Server) EnableTasks(tasks driving.TaskService) {
	s.taskService = tasks
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	h = NewRequestIDMiddleware().Handler(h)
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
