package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// Ensure SyncOrchestrator implements SyncService
var _ driving.SyncService = (*SyncOrchestrator)(nil)

var (
	_ CycleRunner = (*DiscoveryProcessor)(nil)
	_ CycleRunner = (*DocumentProcessor)(nil)
)

// DefaultSyncInterval is how often a source runs when it sets no fetch interval.
const DefaultSyncInterval = time.Hour

// SyncOrchestrator coordinates sync runs across sources.
// For each source it:
//  1. Loads the source and its sync state (halted sources do not run)
//  2. Takes the per-source lock "sync:<source_id>"
//  3. Retries cleanup scopes left over from earlier failures
//  4. Runs the cycle for the source kind
//  5. Archives collected payloads through the upload manager
//  6. Persists the sync state, halting the source on critical errors
type SyncOrchestrator struct {
	sources      driven.SourceStore
	states       driven.SyncStateStore
	versions     *VersionTracker
	records      driven.ProcessingStore
	transactions *TransactionManager
	discovery    CycleRunner
	documents    CycleRunner
	uploads      *UploadManager
	lock         driven.DistributedLock
	breaker      *resilience.CircuitBreaker
	metrics      driven.MetricsRecorder
	logger       *slog.Logger

	defaultIndex string
	interval     time.Duration
	lockTTL      time.Duration
	now          func() time.Time

	// in-process guard used when no distributed lock is configured
	mu      sync.Mutex
	running map[string]struct{}
}

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	SourceStore  driven.SourceStore
	SyncStore    driven.SyncStateStore
	Versions     *VersionTracker
	Records      driven.ProcessingStore
	Transactions *TransactionManager
	Discovery    CycleRunner
	Documents    CycleRunner
	Uploads      *UploadManager         // Optional: archives raw payloads
	Lock         driven.DistributedLock // Optional: cross-instance per-source lock
	Breaker      *resilience.CircuitBreaker
	Metrics      driven.MetricsRecorder
	Logger       *slog.Logger
	DefaultIndex string
	Interval     time.Duration // default fetch interval (default: 1h)
	LockTTL      time.Duration // TTL of the per-source lock (default: 30m)
	Now          func() time.Time
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SyncOrchestrator{
		sources:      cfg.SourceStore,
		states:       cfg.SyncStore,
		versions:     cfg.Versions,
		records:      cfg.Records,
		transactions: cfg.Transactions,
		discovery:    cfg.Discovery,
		documents:    cfg.Documents,
		uploads:      cfg.Uploads,
		lock:         cfg.Lock,
		breaker:      cfg.Breaker,
		metrics:      metrics,
		logger:       logger,
		defaultIndex: cfg.DefaultIndex,
		interval:     interval,
		lockTTL:      lockTTL,
		now:          now,
		running:      make(map[string]struct{}),
	}
}

// SyncSource runs one cycle for a single source.
// The result is always returned; the error is non-nil when the source did not
// complete (disabled, halted, already running, or failed).
func (o *SyncOrchestrator) SyncSource(ctx context.Context, sourceID string) (*domain.SyncResult, error) {
	source, err := o.sources.Get(ctx, sourceID)
	if err != nil {
		return &domain.SyncResult{
			SourceID: sourceID,
			Status:   domain.ResultFailed,
			Error:    err.Error(),
		}, fmt.Errorf("failed to get source: %w", err)
	}
	tracker := NewErrorTracker(o.logger, o.metrics)
	return o.syncSource(ctx, source, tracker)
}

// SyncAll runs every enabled source in priority order.
// It stops starting new sources when ctx is cancelled and always returns a summary;
// the error is non-nil only when the sources could not be listed.
func (o *SyncOrchestrator) SyncAll(ctx context.Context) (*domain.SyncSummary, error) {
	start := o.now()
	summary := &domain.SyncSummary{
		RunID:     uuid.New().String(),
		StartedAt: start,
		Results:   []*domain.SyncResult{},
	}
	logger := o.logger.With("run_id", summary.RunID)

	sources, err := o.sources.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list sources: %w", err)
	}

	tracker := NewErrorTracker(o.logger, o.metrics)
	logger.Info("sync run starting", "sources", len(sources))

	for _, source := range sources {
		if !source.Enabled {
			continue
		}
		if ctx.Err() != nil {
			logger.Info("sync run cancelled, not starting remaining sources")
			break
		}

		result, err := o.syncSource(ctx, source, tracker)
		if err != nil && result.Status == domain.ResultFailed {
			logger.Error("source sync failed", "source_id", source.ID, "error", err)
		}
		summary.Add(result)
	}

	summary.Errors = tracker.Report()
	summary.Circuits = o.Circuits()
	summary.Duration = o.now().Sub(start).Seconds()

	logger.Info("sync run finished",
		"succeeded", summary.SourcesSucceeded,
		"failed", summary.SourcesFailed,
		"skipped", summary.SourcesSkipped,
		"documents_processed", summary.DocumentsProcessed,
		"documents_failed", summary.DocumentsFailed,
		"critical_errors", summary.Errors.CriticalCount,
		"duration_seconds", summary.Duration)
	return summary, nil
}

func (o *SyncOrchestrator) syncSource(ctx context.Context, source *domain.ContentSource, tracker *ErrorTracker) (*domain.SyncResult, error) {
	start := o.now()
	logger := o.logger.With("source_id", source.ID)

	skip := func(reason string, err error) (*domain.SyncResult, error) {
		logger.Info("source skipped", "reason", reason)
		return &domain.SyncResult{
			SourceID: source.ID,
			Status:   domain.ResultSkipped,
			Reason:   reason,
		}, err
	}

	if !source.Enabled {
		return skip("disabled", domain.ErrSourceDisabled)
	}

	state, err := o.loadState(ctx, source.ID)
	if err != nil {
		return o.failSync(source.ID, start, err)
	}
	if state.Status == domain.SyncStatusHalted {
		return skip("halted", domain.ErrSourceHalted)
	}

	acquired, release, err := o.acquire(ctx, source.ID)
	if err != nil {
		return o.failSync(source.ID, start, fmt.Errorf("failed to acquire source lock: %w", err))
	}
	if !acquired {
		return skip("in_progress", domain.ErrSyncInProgress)
	}
	defer release()

	// state writes outlive cancellation so the source never stays "running"
	bg := context.WithoutCancel(ctx)

	startedAt := start
	state.Status = domain.SyncStatusRunning
	state.StartedAt = &startedAt
	state.Error = ""
	if err := o.states.Save(bg, state); err != nil {
		logger.Warn("failed to update sync state to running", "error", err)
	}

	stats := domain.SyncStats{}
	state.PendingCleanup = o.retryPendingCleanup(bg, source, state.PendingCleanup, &stats, tracker)

	runner := o.documents
	if source.Kind.IsDiscovery() {
		runner = o.discovery
	}

	cycle, cycleErr := runner.RunCycle(ctx, source, tracker)
	var summary *domain.CycleSummary
	if cycle != nil {
		summary = cycle.Summary
	}
	if summary != nil {
		stats.Discovered = summary.Discovered
		stats.Processed = summary.Processed
		stats.Skipped = summary.Skipped
		stats.Failed = summary.Failed
		if summary.Cleanup != nil {
			stats.MarkedStale += summary.Cleanup.Marked
			stats.Deleted += summary.Cleanup.Deleted
			if summary.Cleanup.Error != "" {
				state.PendingCleanup = append(state.PendingCleanup, summary.Cleanup.Scope)
			}
		}
	}

	if cycle != nil && len(cycle.Payloads) > 0 && o.uploads != nil {
		stats.Archived = o.archive(bg, source, cycle.Payloads, tracker)
	}

	completedAt := o.now()
	state.Stats = stats
	state.CompletedAt = &completedAt
	state.LastSyncAt = &completedAt
	next := completedAt.Add(o.intervalFor(source))
	state.NextSyncAt = &next

	result := &domain.SyncResult{
		SourceID: source.ID,
		Stats:    stats,
		Cycle:    summary,
		Duration: completedAt.Sub(start).Seconds(),
	}

	switch {
	case tracker.HasCriticalFor(source.ID):
		state.Status = domain.SyncStatusHalted
		if cycleErr == nil {
			cycleErr = errors.New("critical error")
		}
		state.Error = cycleErr.Error()
		result.Status = domain.ResultFailed
		result.Error = state.Error
		result.Reason = "halted"
		logger.Error("source halted after critical error", "error", cycleErr)
	case cycleErr != nil:
		state.Status = domain.SyncStatusFailed
		state.Error = cycleErr.Error()
		result.Status = domain.ResultFailed
		result.Error = state.Error
	default:
		state.Status = domain.SyncStatusCompleted
		result.Status = domain.ResultSuccess
	}

	if err := o.states.Save(bg, state); err != nil {
		logger.Warn("failed to update sync state", "error", err)
	}

	o.metrics.ObserveCycle(source.ID, result.Status, stats, completedAt.Sub(start))
	o.publishCircuits()

	logger.Info("source sync finished",
		"status", result.Status,
		"discovered", stats.Discovered,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"marked_stale", stats.MarkedStale,
		"deleted", stats.Deleted,
		"archived", stats.Archived,
		"duration_seconds", result.Duration)

	if result.Status == domain.ResultFailed {
		return result, cycleErr
	}
	return result, nil
}

// retryPendingCleanup re-runs cleanup scopes that failed in earlier cycles and
// returns the ones still failing.
func (o *SyncOrchestrator) retryPendingCleanup(ctx context.Context, source *domain.ContentSource, pending []domain.OutdatedScope, stats *domain.SyncStats, tracker *ErrorTracker) []domain.OutdatedScope {
	if len(pending) == 0 {
		return nil
	}
	index := indexName(source, o.defaultIndex)
	var remaining []domain.OutdatedScope
	for _, scope := range pending {
		res, err := o.transactions.Cleanup(ctx, index, scope)
		stats.MarkedStale += res.Marked
		stats.Deleted += res.Deleted
		if err != nil {
			remaining = append(remaining, scope)
			tracker.Track(source.ID, domain.ErrorKindCleanup, domain.SeverityWarning, err, map[string]string{"retry": "true"})
		}
	}
	o.logger.Info("retried pending cleanup",
		"source_id", source.ID,
		"scopes", len(pending),
		"remaining", len(remaining))
	return remaining
}

// archive uploads collected payloads and returns how many were stored.
func (o *SyncOrchestrator) archive(ctx context.Context, source *domain.ContentSource, payloads []*domain.UploadPayload, tracker *ErrorTracker) int {
	report := o.uploads.UploadFiles(ctx, payloads)
	for _, failed := range report.Failed {
		tracker.Track(source.ID, domain.ErrorKindUpload, domain.SeverityWarning, errors.New(failed.Error), map[string]string{
			"key":      failed.Key,
			"attempts": fmt.Sprint(failed.Attempts),
		})
	}
	return len(report.Succeeded)
}

// Resume clears the halt of a source so automated cycles pick it up again.
func (o *SyncOrchestrator) Resume(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	if _, err := o.sources.Get(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	state, err := o.loadState(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if state.Status != domain.SyncStatusHalted {
		return state, nil
	}
	state.Status = domain.SyncStatusIdle
	state.Error = ""
	if err := o.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save sync state: %w", err)
	}
	o.logger.Info("source resumed", "source_id", sourceID)
	return state, nil
}

// Reset forgets everything recorded about a source: its version, processing
// records and sync state, halting included. Indexed documents stay; the next
// cycle re-indexes every item and its cleanup removes the older copies.
func (o *SyncOrchestrator) Reset(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	if _, err := o.sources.Get(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	acquired, release, err := o.acquire(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire source lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", domain.ErrSyncInProgress, sourceID)
	}
	defer release()

	if err := o.versions.Forget(ctx, sourceID); err != nil {
		return nil, err
	}
	if err := o.states.Delete(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete sync state: %w", err)
	}
	o.logger.Info("source reset", "source_id", sourceID)
	return o.loadState(ctx, sourceID)
}

// GetSource returns a configured source.
func (o *SyncOrchestrator) GetSource(ctx context.Context, sourceID string) (*domain.ContentSource, error) {
	return o.sources.Get(ctx, sourceID)
}

// ListSources returns all configured sources in priority order.
func (o *SyncOrchestrator) ListSources(ctx context.Context) ([]*domain.ContentSource, error) {
	return o.sources.List(ctx)
}

// GetSyncState returns the sync state of a source, idle when it never ran.
func (o *SyncOrchestrator) GetSyncState(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	return o.loadState(ctx, sourceID)
}

// ListSyncStates returns the sync states of all sources that ran at least once.
func (o *SyncOrchestrator) ListSyncStates(ctx context.Context) ([]*domain.SyncState, error) {
	return o.states.List(ctx)
}

// GetVersion returns the stored version of a source, or nil when it was never fetched.
func (o *SyncOrchestrator) GetVersion(ctx context.Context, sourceID string) (*domain.VersionInfo, error) {
	return o.versions.GetVersion(ctx, sourceID)
}

// ListItems returns the processing records of a listing source.
func (o *SyncOrchestrator) ListItems(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error) {
	if _, err := o.sources.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	return o.records.ListBySource(ctx, sourceID)
}

// Circuits returns the current circuit breaker snapshot.
func (o *SyncOrchestrator) Circuits() []domain.CircuitSnapshot {
	if o.breaker == nil {
		return []domain.CircuitSnapshot{}
	}
	return o.breaker.Snapshot()
}

// DueAt reports when a source should next run given its sync state.
func (o *SyncOrchestrator) DueAt(source *domain.ContentSource, state *domain.SyncState) time.Time {
	if state == nil || state.LastSyncAt == nil {
		return time.Time{}
	}
	return state.LastSyncAt.Add(o.intervalFor(source))
}

func (o *SyncOrchestrator) intervalFor(source *domain.ContentSource) time.Duration {
	if source.FetchInterval > 0 {
		return source.FetchInterval
	}
	return o.interval
}

func (o *SyncOrchestrator) loadState(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	state, err := o.states.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.SyncState{SourceID: sourceID, Status: domain.SyncStatusIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// acquire takes the per-source lock. The returned release func is safe to call
// only when acquired is true.
func (o *SyncOrchestrator) acquire(ctx context.Context, sourceID string) (bool, func(), error) {
	name := "sync:" + sourceID
	if o.lock == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, held := o.running[sourceID]; held {
			return false, nil, nil
		}
		o.running[sourceID] = struct{}{}
		return true, func() {
			o.mu.Lock()
			delete(o.running, sourceID)
			o.mu.Unlock()
		}, nil
	}

	acquired, err := o.lock.Acquire(ctx, name, o.lockTTL)
	if err != nil || !acquired {
		return false, nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go o.keepAlive(context.WithoutCancel(ctx), name, stop, done)

	return true, func() {
		close(stop)
		<-done
		if err := o.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			o.logger.Warn("failed to release source lock", "lock", name, "error", err)
		}
	}, nil
}

// keepAlive extends a held source lock every half TTL until stop is closed,
// so cycles longer than the TTL keep their lock.
func (o *SyncOrchestrator) keepAlive(ctx context.Context, name string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := o.lock.Extend(ctx, name, o.lockTTL); err != nil {
				o.logger.Warn("failed to extend source lock", "lock", name, "error", err)
			}
		}
	}
}

func (o *SyncOrchestrator) publishCircuits() {
	for _, c := range o.Circuits() {
		o.metrics.SetCircuitState(c.Key, c.State)
	}
}

// failSync reports a source that could not start.
func (o *SyncOrchestrator) failSync(sourceID string, start time.Time, err error) (*domain.SyncResult, error) {
	o.logger.Error("sync failed", "source_id", sourceID, "error", err)
	return &domain.SyncResult{
		SourceID: sourceID,
		Status:   domain.ResultFailed,
		Error:    err.Error(),
		Duration: o.now().Sub(start).Seconds(),
	}, err
}
