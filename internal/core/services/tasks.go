package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Ensure TaskService implements the driving port
var _ driving.TaskService = (*TaskService)(nil)

// TaskService validates sync requests and queues them for the worker.
type TaskService struct {
	queue       driven.TaskQueue
	sources     driven.SourceStore
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// TaskServiceConfig holds configuration for the task service.
type TaskServiceConfig struct {
	Queue       driven.TaskQueue
	Sources     driven.SourceStore
	Logger      *slog.Logger
	MaxAttempts int // Attempts per task (default: 3)
	Now         func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(cfg TaskServiceConfig) *TaskService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultTaskMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TaskService{
		queue:       cfg.Queue,
		sources:     cfg.Sources,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
	}
}

// SubmitSyncSource queues a sync of one source. Unknown and disabled sources
// are rejected up front.
func (s *TaskService) SubmitSyncSource(ctx context.Context, sourceID string) (*domain.Task, error) {
	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.Enabled {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceDisabled, sourceID)
	}
	return s.submit(ctx, domain.NewSyncSourceTask(sourceID, s.now()))
}

// SubmitSyncAll queues a sync of every enabled source
func (s *TaskService) SubmitSyncAll(ctx context.Context) (*domain.Task, error) {
	return s.submit(ctx, domain.NewSyncAllTask(s.now()))
}

// GetTask retrieves a queued task by ID
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.queue.GetTask(ctx, taskID)
}

func (s *TaskService) submit(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	task.MaxAttempts = s.maxAttempts
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	s.logger.Info("sync task queued", "task_id", task.ID, "task_type", task.Type, "source_id", task.SourceID)
	return task, nil
}
