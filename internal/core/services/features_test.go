package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// versionChangeFeature holds the state of one scenario.
type versionChangeFeature struct {
	index        *mocks.MockDocumentIndex
	transactions *TransactionManager
	cleanup      domain.CleanupStats
	cleanupErr   error
}

func (f *versionChangeFeature) emptyIndex() error {
	f.index = mocks.NewMockDocumentIndex()
	f.transactions = NewTransactionManager(TransactionManagerConfig{
		Index:    f.index,
		Executor: resilience.NewExecutor(fastPolicy(), nil, discardLogger()),
		Logger:   discardLogger(),
	})
	f.cleanup = domain.CleanupStats{}
	f.cleanupErr = nil
	return nil
}

func (f *versionChangeFeature) indexVersion(ctx context.Context, body, sourceID, at string) error {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return err
	}
	_, err = f.transactions.UpsertNewVersion(ctx, testIndex, testDocument(sourceID, body, ts))
	return err
}

func (f *versionChangeFeature) rejectDeletes() error {
	f.index.DeleteOutdatedFn = func(string, domain.OutdatedScope) (int, error) {
		return 0, errors.New("delete rejected")
	}
	return nil
}

func (f *versionChangeFeature) cleanUp(ctx context.Context, sourceID, before string) error {
	ts, err := time.Parse(time.RFC3339, before)
	if err != nil {
		return err
	}
	f.cleanup, f.cleanupErr = f.transactions.Cleanup(ctx, testIndex, domain.OutdatedScope{SourceID: sourceID, Before: ts})
	return nil
}

func (f *versionChangeFeature) documentCount(ctx context.Context, sourceID string, want int) error {
	got, err := f.index.CountBySource(ctx, testIndex, sourceID, false)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("source %s has %d documents, want %d", sourceID, got, want)
	}
	return nil
}

func (f *versionChangeFeature) cleanupCounts(marked, deleted int) error {
	if f.cleanupErr != nil {
		return fmt.Errorf("cleanup failed: %w", f.cleanupErr)
	}
	if f.cleanup.Marked != marked || f.cleanup.Deleted != deleted {
		return fmt.Errorf("cleanup marked %d and deleted %d, want %d and %d",
			f.cleanup.Marked, f.cleanup.Deleted, marked, deleted)
	}
	return nil
}

func (f *versionChangeFeature) cleanupFailed() error {
	if f.cleanupErr == nil {
		return errors.New("cleanup succeeded")
	}
	if f.cleanup.Error == "" {
		return errors.New("cleanup stats carry no error")
	}
	return nil
}

func (f *versionChangeFeature) currentContent(sourceID, want string) error {
	var current []string
	for _, doc := range f.index.Documents(testIndex) {
		if doc.SourceID == sourceID && !doc.Stale {
			current = append(current, doc.Content)
		}
	}
	if len(current) != 1 || current[0] != want {
		return fmt.Errorf("current documents of %s are %v, want [%s]", sourceID, current, want)
	}
	return nil
}

func initializeVersionChangeScenario(sc *godog.ScenarioContext) {
	f := &versionChangeFeature{}

	sc.Step(`^an empty document index$`, f.emptyIndex)
	sc.Step(`^source "([^"]*)" has version "([^"]*)" indexed at "([^"]*)"$`, func(ctx context.Context, sourceID, body, at string) error {
		return f.indexVersion(ctx, body, sourceID, at)
	})
	sc.Step(`^version "([^"]*)" of source "([^"]*)" is indexed at "([^"]*)"$`, f.indexVersion)
	sc.Step(`^the index rejects deletes$`, f.rejectDeletes)
	sc.Step(`^outdated documents of source "([^"]*)" before "([^"]*)" are cleaned up$`, f.cleanUp)
	sc.Step(`^source "([^"]*)" has (\d+) documents?$`, f.documentCount)
	sc.Step(`^(\d+) document is marked stale and (\d+) is deleted$`, f.cleanupCounts)
	sc.Step(`^the cleanup reports an error$`, f.cleanupFailed)
	sc.Step(`^the current document of source "([^"]*)" has content "([^"]*)"$`, f.currentContent)
}

func TestFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping feature scenarios in short mode")
	}
	suite := godog.TestSuite{
		Name:                "version-change",
		ScenarioInitializer: initializeVersionChangeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
