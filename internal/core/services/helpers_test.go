package services

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

const testIndex = "test-documents"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock advances one second on every read so cycle timestamps are strictly increasing.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func createTestPDFIndexSource(t *testing.T, id, url string) *domain.ContentSource {
	t.Helper()
	s := &domain.ContentSource{
		ID:       id,
		Kind:     domain.SourceKindPDFIndex,
		Enabled:  true,
		Index:    testIndex,
		PDFIndex: &domain.PDFIndexConfig{URL: url},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("invalid test source: %v", err)
	}
	return s
}

func createTestFileSource(t *testing.T, id, url string) *domain.ContentSource {
	t.Helper()
	s := &domain.ContentSource{
		ID:      id,
		Kind:    domain.SourceKindSingleFile,
		Enabled: true,
		Index:   testIndex,
		File:    &domain.FileConfig{URL: url},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("invalid test source: %v", err)
	}
	return s
}

// testEnv wires the services against in-memory mocks.
type testEnv struct {
	clock     *testClock
	fetcher   *mocks.MockFetcher
	links     *mocks.MockLinkExtractor
	extractor *mocks.MockExtractor
	index     *mocks.MockDocumentIndex
	versions  *mocks.MockVersionStore
	records   *mocks.MockProcessingStore
	states    *mocks.MockSyncStateStore
	sources   *mocks.MockSourceStore
	blobs     *mocks.MockBlobStore
	breaker   *resilience.CircuitBreaker
	exec      *resilience.Executor

	versionTracker *VersionTracker
	transactions   *TransactionManager
	discovery      *DiscoveryProcessor
	documents      *DocumentProcessor
	uploads        *UploadManager
	orchestrator   *SyncOrchestrator
}

func newTestEnv(t *testing.T, sources ...*domain.ContentSource) *testEnv {
	t.Helper()
	logger := discardLogger()

	env := &testEnv{
		clock:     newTestClock(),
		fetcher:   mocks.NewMockFetcher(),
		links:     mocks.NewMockLinkExtractor(),
		extractor: mocks.NewMockExtractor(),
		index:     mocks.NewMockDocumentIndex(),
		versions:  mocks.NewMockVersionStore(),
		records:   mocks.NewMockProcessingStore(),
		states:    mocks.NewMockSyncStateStore(),
		sources:   mocks.NewMockSourceStore(sources...),
		blobs:     mocks.NewMockBlobStore(),
	}
	env.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})
	env.exec = resilience.NewExecutor(fastPolicy(), env.breaker, logger)

	env.versionTracker = NewVersionTracker(VersionTrackerConfig{
		Store:   env.versions,
		Records: env.records,
		Logger:  logger,
		Now:     env.clock.Now,
	})
	env.transactions = NewTransactionManager(TransactionManagerConfig{
		Index:    env.index,
		Executor: env.exec,
		Logger:   logger,
	})
	env.discovery = NewDiscoveryProcessor(DiscoveryProcessorConfig{
		Fetcher:      env.fetcher,
		Links:        env.links,
		Extractor:    env.extractor,
		Records:      env.records,
		Versions:     env.versionTracker,
		Transactions: env.transactions,
		Executor:     env.exec,
		Archive:      true,
		Logger:       logger,
		Now:          env.clock.Now,
	})
	env.documents = NewDocumentProcessor(DocumentProcessorConfig{
		Fetcher:      env.fetcher,
		Extractor:    env.extractor,
		Versions:     env.versionTracker,
		Transactions: env.transactions,
		Executor:     env.exec,
		Archive:      true,
		Logger:       logger,
		Now:          env.clock.Now,
	})
	env.uploads = NewUploadManager(UploadManagerConfig{
		Store:          env.blobs,
		DispatchDelay:  0,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Logger:         logger,
	})
	env.orchestrator = NewSyncOrchestrator(SyncOrchestratorConfig{
		SourceStore:  env.sources,
		SyncStore:    env.states,
		Versions:     env.versionTracker,
		Records:      env.records,
		Transactions: env.transactions,
		Discovery:    env.discovery,
		Documents:    env.documents,
		Uploads:      env.uploads,
		Breaker:      env.breaker,
		Logger:       logger,
		Now:          env.clock.Now,
	})
	return env
}

// listing registers a listing page whose lines are the item URLs.
func (e *testEnv) listing(url string, items ...string) {
	body := ""
	for _, item := range items {
		body += item + "\n"
	}
	e.fetcher.SetPayload(url, "text/html", []byte(body))
}

func newTestErrorTracker() *ErrorTracker {
	return NewErrorTracker(discardLogger(), nil)
}
