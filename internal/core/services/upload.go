package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// UploadManager pushes independent payloads to a blob store with bounded parallelism.
// Payloads go out in fixed-size batches; within a batch at most Concurrency uploads are
// in flight and dispatches are spaced by DispatchDelay. Each payload is retried with
// exponential backoff. Failures are collected, never raised.
type UploadManager struct {
	store       driven.BlobStore
	exec        *resilience.Executor
	concurrency int
	batchSize   int
	delay       time.Duration
	metrics     driven.MetricsRecorder
	logger      *slog.Logger
}

// UploadManagerConfig holds configuration for UploadManager.
type UploadManagerConfig struct {
	Store          driven.BlobStore
	Concurrency    int           // in-flight uploads (default: 3)
	BatchSize      int           // payloads per batch (default: 10)
	DispatchDelay  time.Duration // spacing between dispatches (default: 100ms)
	MaxAttempts    int           // attempts per payload (default: 3)
	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // default: 30s
	Breaker        *resilience.CircuitBreaker
	Metrics        driven.MetricsRecorder
	Logger         *slog.Logger
}

// NewUploadManager creates a new upload manager.
func NewUploadManager(cfg UploadManagerConfig) *UploadManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.DispatchDelay < 0 {
		cfg.DispatchDelay = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	policy := resilience.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.InitialBackoff,
		MaxDelay:    cfg.MaxBackoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, resilience.ErrCircuitOpen) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, domain.ErrInvalidInput)
		},
	}

	return &UploadManager{
		store:       cfg.Store,
		exec:        resilience.NewExecutor(policy, cfg.Breaker, logger),
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		delay:       cfg.DispatchDelay,
		metrics:     metrics,
		logger:      logger,
	}
}

// UploadFiles uploads every payload and reports successes and failures.
// Cancelling ctx stops further dispatches; payloads never dispatched are reported failed
// and uploads already in flight run to completion.
func (m *UploadManager) UploadFiles(ctx context.Context, payloads []*domain.UploadPayload) *domain.UploadReport {
	report := &domain.UploadReport{
		Succeeded: []domain.UploadResult{},
		Failed:    []domain.UploadResult{},
	}
	if len(payloads) == 0 {
		return report
	}

	limit := rate.Inf
	if m.delay > 0 {
		limit = rate.Every(m.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var mu sync.Mutex
	collect := func(res domain.UploadResult) {
		mu.Lock()
		defer mu.Unlock()
		if res.Succeeded() {
			report.Succeeded = append(report.Succeeded, res)
		} else {
			report.Failed = append(report.Failed, res)
		}
		m.metrics.ObserveUpload(res)
	}

	for start := 0; start < len(payloads); start += m.batchSize {
		end := min(start+m.batchSize, len(payloads))
		batch := payloads[start:end]
		report.Batches++

		var g errgroup.Group
		g.SetLimit(m.concurrency)
		for i, p := range batch {
			if err := limiter.Wait(ctx); err != nil {
				for _, rest := range batch[i:] {
					collect(domain.UploadResult{Key: rest.Key, Error: "not dispatched: " + err.Error()})
				}
				break
			}
			g.Go(func() error {
				collect(m.uploadOne(context.WithoutCancel(ctx), p))
				return nil
			})
		}
		_ = g.Wait()

		m.logger.Info("upload batch finished",
			"batch", report.Batches,
			"size", len(batch),
			"succeeded", len(report.Succeeded),
			"failed", len(report.Failed))

		if ctx.Err() != nil {
			for _, rest := range payloads[end:] {
				collect(domain.UploadResult{Key: rest.Key, Error: "not dispatched: " + ctx.Err().Error()})
			}
			break
		}
	}
	return report
}

func (m *UploadManager) uploadOne(ctx context.Context, payload *domain.UploadPayload) domain.UploadResult {
	res := domain.UploadResult{Key: payload.Key}

	attempt := 0
	out := resilience.Run(ctx, m.exec, "upload:"+payload.Key, func(ctx context.Context) (struct{}, error) {
		attempt++
		err := m.store.Put(ctx, payload)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, domain.ErrRateLimited) {
			res.RateLimited = true
			m.logger.Warn("upload rate limited, backing off",
				"key", payload.Key,
				"attempt", attempt,
				"reason", "rate_limit")
		} else {
			m.logger.Warn("upload failed",
				"key", payload.Key,
				"attempt", attempt,
				"reason", "transient",
				"error", err)
		}
		return struct{}{}, err
	})

	res.Attempts = out.Attempts
	if !out.OK() {
		res.Error = out.Err.Error()
		m.logger.Error("upload gave up",
			"key", payload.Key,
			"attempts", out.Attempts,
			"outcome", out.Kind.String(),
			"error", out.Err)
	}
	return res
}
