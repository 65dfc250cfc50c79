package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Ensure Scheduler implements the driving port
var _ driving.Scheduler = (*Scheduler)(nil)

// SourceSyncer runs a single source; SyncOrchestrator implements it.
type SourceSyncer interface {
	SyncSource(ctx context.Context, sourceID string) (*domain.SyncResult, error)
	GetSyncState(ctx context.Context, sourceID string) (*domain.SyncState, error)
	DueAt(source *domain.ContentSource, state *domain.SyncState) time.Time
}

// Scheduler runs due sources periodically.
//
// For multi-instance deployments, configure a DistributedLock so only one
// instance polls per tick. Per-source locks taken by the orchestrator keep
// manual triggers and scheduled runs from overlapping.
type Scheduler struct {
	sources driven.SourceStore
	syncer  SourceSyncer
	lock    driven.DistributedLock
	logger  *slog.Logger
	now     func() time.Time

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Sources      driven.SourceStore
	Syncer       SourceSyncer
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due sources (default: 30s)
	LockTTL      time.Duration // TTL for the scheduler lock (default: 60s)
	LockRequired bool          // If true, skip the tick when the lock backend errors (default: true with a lock)
	Now          func() time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	lockRequired := cfg.LockRequired
	if cfg.Lock != nil {
		lockRequired = true
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		sources:      cfg.Sources,
		syncer:       cfg.Syncer,
		lock:         cfg.Lock,
		logger:       logger,
		now:          now,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every due source. With a distributed lock configured, only the
// instance holding "scheduler" polls.
func (s *Scheduler) tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, "scheduler", s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return
			}
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping tick")
			return
		} else {
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(ctx), "scheduler"); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	due, err := s.DueSources(ctx)
	if err != nil {
		s.logger.Error("failed to list due sources", "error", err)
		return
	}

	for _, source := range due {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-s.stopCh:
			return
		default:
		}

		result, err := s.syncer.SyncSource(ctx, source.ID)
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
			s.logger.Debug("source already syncing", "source_id", source.ID)
		case err != nil:
			s.logger.Warn("scheduled sync failed", "source_id", source.ID, "error", err)
		default:
			s.logger.Info("scheduled sync completed",
				"source_id", source.ID,
				"processed", result.Stats.Processed,
				"failed", result.Stats.Failed)
		}
	}
}

// DueSources returns enabled, non-halted sources whose interval has elapsed,
// in priority order.
func (s *Scheduler) DueSources(ctx context.Context) ([]*domain.ContentSource, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var due []*domain.ContentSource
	for _, source := range sources {
		if !source.Enabled {
			continue
		}
		state, err := s.syncer.GetSyncState(ctx, source.ID)
		if err != nil {
			s.logger.Warn("failed to get sync state", "source_id", source.ID, "error", err)
			continue
		}
		if state.Status == domain.SyncStatusHalted {
			s.logger.Debug("source halted, not scheduling", "source_id", source.ID)
			continue
		}
		if now.Before(s.syncer.DueAt(source, state)) {
			continue
		}
		due = append(due, source)
	}
	return due, nil
}

// TriggerNow immediately runs a source, ignoring its schedule.
func (s *Scheduler) TriggerNow(ctx context.Context, sourceID string) (*domain.SyncResult, error) {
	s.logger.Info("manually triggered source sync", "source_id", sourceID)
	return s.syncer.SyncSource(ctx, sourceID)
}
