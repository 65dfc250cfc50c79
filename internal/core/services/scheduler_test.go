package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven/mocks"
)

// recordingSyncer records which sources the scheduler runs.
type recordingSyncer struct {
	*SyncOrchestrator
	mu    sync.Mutex
	calls []string
}

func (r *recordingSyncer) SyncSource(ctx context.Context, sourceID string) (*domain.SyncResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, sourceID)
	r.mu.Unlock()
	return r.SyncOrchestrator.SyncSource(ctx, sourceID)
}

func (r *recordingSyncer) getCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func createTestScheduler(t *testing.T, lock *mocks.MockDistributedLock, sources ...*domain.ContentSource) (*Scheduler, *recordingSyncer, *testEnv) {
	t.Helper()
	env := newTestEnv(t, sources...)
	syncer := &recordingSyncer{SyncOrchestrator: env.orchestrator}
	cfg := SchedulerConfig{
		Sources:      env.sources,
		Syncer:       syncer,
		Logger:       discardLogger(),
		PollInterval: time.Hour,
		Now:          env.clock.Now,
	}
	if lock != nil {
		cfg.Lock = lock
	}
	return NewScheduler(cfg), syncer, env
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})

	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.lockTTL != 60*time.Second {
		t.Errorf("expected default lock ttl 60s, got %v", s.lockTTL)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestNewScheduler_LockImpliesRequired(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Lock: mocks.NewMockDistributedLock()})
	if !s.lockRequired {
		t.Error("expected lockRequired when a lock is configured")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _ := createTestScheduler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		t.Error("expected scheduler to be running")
	}

	// Start again should be no-op
	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()
	if running {
		t.Error("expected scheduler to be stopped")
	}

	// Stop again should be no-op
	s.Stop()
}

func TestScheduler_DueSources(t *testing.T) {
	fresh := createTestFileSource(t, "fresh", "https://example.com/fresh.html")
	recent := createTestFileSource(t, "recent", "https://example.com/recent.html")
	stale := createTestFileSource(t, "stale", "https://example.com/stale.html")
	halted := createTestFileSource(t, "halted", "https://example.com/halted.html")
	off := createTestFileSource(t, "off", "https://example.com/off.html")
	off.Enabled = false
	quick := createTestFileSource(t, "quick", "https://example.com/quick.html")
	quick.FetchInterval = time.Minute

	s, _, env := createTestScheduler(t, nil, fresh, recent, stale, halted, off, quick)
	ctx := context.Background()

	now := env.clock.Now()
	recentAt := now.Add(-10 * time.Minute)
	staleAt := now.Add(-2 * time.Hour)
	for _, st := range []*domain.SyncState{
		{SourceID: "recent", Status: domain.SyncStatusCompleted, LastSyncAt: &recentAt},
		{SourceID: "stale", Status: domain.SyncStatusCompleted, LastSyncAt: &staleAt},
		{SourceID: "halted", Status: domain.SyncStatusHalted, LastSyncAt: &staleAt},
		{SourceID: "quick", Status: domain.SyncStatusCompleted, LastSyncAt: &recentAt},
	} {
		if err := env.states.Save(ctx, st); err != nil {
			t.Fatalf("failed to seed state: %v", err)
		}
	}

	due, err := s.DueSources(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]bool{}
	for _, source := range due {
		got[source.ID] = true
	}
	for _, id := range []string{"fresh", "stale", "quick"} {
		if !got[id] {
			t.Errorf("expected %s to be due", id)
		}
	}
	for _, id := range []string{"recent", "halted", "off"} {
		if got[id] {
			t.Errorf("expected %s not to be due", id)
		}
	}
}

func TestScheduler_TickRunsDueSources(t *testing.T) {
	page := createTestFileSource(t, "page", "https://example.com/page.html")
	s, syncer, env := createTestScheduler(t, nil, page)
	env.fetcher.SetPayload("https://example.com/page.html", "text/html", []byte("hello"))

	s.tick(context.Background())

	calls := syncer.getCalls()
	if len(calls) != 1 || calls[0] != "page" {
		t.Fatalf("expected one run of page, got %v", calls)
	}

	// the source just ran, so the next tick has nothing to do
	s.tick(context.Background())
	if len(syncer.getCalls()) != 1 {
		t.Errorf("expected no second run, got %v", syncer.getCalls())
	}
}

func TestScheduler_TickSkippedWhenLockHeld(t *testing.T) {
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld("scheduler", time.Minute)
	page := createTestFileSource(t, "page", "https://example.com/page.html")
	s, syncer, _ := createTestScheduler(t, lock, page)

	s.tick(context.Background())

	if len(syncer.getCalls()) != 0 {
		t.Errorf("expected no runs while another instance holds the lock, got %v", syncer.getCalls())
	}
}

func TestScheduler_TickReleasesLock(t *testing.T) {
	lock := mocks.NewMockDistributedLock()
	s, _, _ := createTestScheduler(t, lock)

	s.tick(context.Background())

	if lock.IsHeld("scheduler") {
		t.Error("expected scheduler lock to be released")
	}
	if acquired := lock.Acquired(); len(acquired) != 1 || acquired[0] != "scheduler" {
		t.Errorf("expected scheduler lock acquisition, got %v", acquired)
	}
}

func TestScheduler_TriggerNow(t *testing.T) {
	page := createTestFileSource(t, "page", "https://example.com/page.html")
	s, syncer, env := createTestScheduler(t, nil, page)
	env.fetcher.SetPayload("https://example.com/page.html", "text/html", []byte("hello"))

	result, err := s.TriggerNow(context.Background(), "page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.ResultSuccess {
		t.Errorf("expected success, got %s", result.Status)
	}
	if len(syncer.getCalls()) != 1 {
		t.Errorf("expected one run, got %v", syncer.getCalls())
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	s, _, _ := createTestScheduler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}
	cancel()

	select {
	case <-s.doneCh:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
