package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Syncer runs the sync cycles a task asks for; SyncOrchestrator implements it.
type Syncer interface {
	SyncSource(ctx context.Context, sourceID string) (*domain.SyncResult, error)
	SyncAll(ctx context.Context) (*domain.SyncSummary, error)
}

// Worker processes queued sync tasks.
type Worker struct {
	taskQueue driven.TaskQueue
	syncer    Syncer
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout time.Duration
	errorBackoff   time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Syncer         Syncer
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent task processors
	DequeueTimeout time.Duration // How long to wait for a task before checking again
	ErrorBackoff   time.Duration // Pause after a failed dequeue (default: 1s)
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5 * time.Second
	}

	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		syncer:         cfg.Syncer,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		errorBackoff:   errorBackoff,
	}
}

// Start launches the processing goroutines and returns immediately.
// They run until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, stopCh, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(doneCh)
	}()

	return nil
}

// Stop signals the processing goroutines and waits for in-flight tasks.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the processing goroutines exit.
func (w *Worker) Wait() {
	w.mu.RLock()
	doneCh := w.doneCh
	w.mu.RUnlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (w *Worker) processLoop(ctx context.Context, stopCh <-chan struct{}, workerID int) {
	logger := w.logger.With("worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		task, err := w.taskQueue.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-ctx.Done():
			case <-stopCh:
			case <-time.After(w.errorBackoff):
			}
			continue
		}
		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and settles it on the queue. Failures that another
// attempt cannot fix fail the task outright; everything else is nacked.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "source_id", task.SourceID, "attempt", task.Attempts)
	logger.Info("processing task")

	start := time.Now()
	runID, err := w.run(ctx, task)
	duration := time.Since(start)

	// settle even when shutdown cancelled the run
	settleCtx := context.WithoutCancel(ctx)

	if err == nil {
		logger.Info("task completed", "duration", duration)
		if ackErr := w.taskQueue.Ack(settleCtx, task.ID, runID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}
		return
	}

	if permanent(err) {
		logger.Error("task failed permanently", "duration", duration, "error", err)
		if failErr := w.taskQueue.Fail(settleCtx, task.ID, err.Error()); failErr != nil {
			logger.Error("failed to fail task", "fail_error", failErr)
		}
		return
	}

	logger.Warn("task failed, will retry", "duration", duration, "error", err)
	if nackErr := w.taskQueue.Nack(settleCtx, task.ID, err.Error()); nackErr != nil {
		logger.Error("failed to nack task", "nack_error", nackErr)
	}
}

func (w *Worker) run(ctx context.Context, task *domain.Task) (string, error) {
	switch task.Type {
	case domain.TaskTypeSyncSource:
		if task.SourceID == "" {
			return "", fmt.Errorf("%w: sync_source task without source id", domain.ErrInvalidInput)
		}
		_, err := w.syncer.SyncSource(ctx, task.SourceID)
		return "", err
	case domain.TaskTypeSyncAll:
		summary, err := w.syncer.SyncAll(ctx)
		if err != nil {
			return "", err
		}
		if summary.SourcesFailed > 0 {
			// individual failures are reported in the summary and the error tracker
			w.logger.Warn("some sources failed", "run_id", summary.RunID, "failed", summary.SourcesFailed)
		}
		return summary.RunID, nil
	default:
		return "", fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidInput, task.Type)
	}
}

// permanent reports errors that retrying the same task cannot resolve.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrSourceDisabled) ||
		errors.Is(err, domain.ErrSourceHalted) ||
		errors.Is(err, domain.ErrUnsupportedKind)
}

// Health reports worker and queue status.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{Running: running}
	if err := w.taskQueue.Ping(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}
	return health
}

// Ping fails when the worker is not running or its queue is unreachable.
func (w *Worker) Ping(ctx context.Context) error {
	h := w.Health(ctx)
	if !h.Running {
		return errors.New("worker not running")
	}
	if !h.QueueHealth {
		return fmt.Errorf("task queue: %s", h.Error)
	}
	return nil
}
