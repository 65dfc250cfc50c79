package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// TransactionManager keeps the index consistent with the latest version of each source.
//
// It is not atomic. A version change is three independent, idempotent steps:
//  1. UpsertNewVersion writes the new document under a content-derived id
//  2. MarkOutdated flags older documents of the source as stale
//  3. DeleteOutdated removes them
//
// A crash between steps leaves old and new documents side by side, the old ones
// possibly flagged stale. A source never ends up with zero documents.
type TransactionManager struct {
	index   driven.DocumentIndex
	exec    *resilience.Executor
	metrics driven.MetricsRecorder
	logger  *slog.Logger
}

// TransactionManagerConfig holds dependencies for TransactionManager.
type TransactionManagerConfig struct {
	Index    driven.DocumentIndex
	Executor *resilience.Executor
	Metrics  driven.MetricsRecorder
	Logger   *slog.Logger
}

// NewTransactionManager creates a new transaction manager.
func NewTransactionManager(cfg TransactionManagerConfig) *TransactionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	exec := cfg.Executor
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultRetryPolicy(), nil, logger)
	}
	return &TransactionManager{
		index:   cfg.Index,
		exec:    exec,
		metrics: metrics,
		logger:  logger,
	}
}

// UpsertNewVersion writes doc and returns the id assigned by the index.
// The id is derived from source, item and content hash, so repeating the call is harmless.
func (m *TransactionManager) UpsertNewVersion(ctx context.Context, index string, doc *domain.IndexDocument) (string, error) {
	if doc.SourceID == "" || doc.ContentHash == "" {
		return "", fmt.Errorf("%w: document needs source id and content hash", domain.ErrInvalidInput)
	}
	if doc.ID == "" {
		doc.ID = domain.DocumentID(doc.SourceID, doc.ItemKey, doc.ContentHash)
	}
	doc.Stale = false

	id, err := resilience.Execute(ctx, m.exec, "index:upsert:"+index, func(ctx context.Context) (string, error) {
		return m.index.Upsert(ctx, index, doc)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	if id == "" {
		id = doc.ID
	}

	m.logger.Debug("upserted document",
		"source_id", doc.SourceID,
		"document_id", id,
		"index", index)
	return id, nil
}

// MarkOutdated flags documents matching scope as stale and returns the count.
func (m *TransactionManager) MarkOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}
	n, err := resilience.Execute(ctx, m.exec, "index:mark_stale:"+index, func(ctx context.Context) (int, error) {
		return m.index.MarkStale(ctx, index, scope)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark outdated documents of %s: %w", scope.SourceID, err)
	}
	m.metrics.ObserveCleanup(scope.SourceID, "mark_stale", n)
	return n, nil
}

// DeleteOutdated removes documents matching scope and returns the count.
func (m *TransactionManager) DeleteOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}
	n, err := resilience.Execute(ctx, m.exec, "index:delete:"+index, func(ctx context.Context) (int, error) {
		return m.index.DeleteOutdated(ctx, index, scope)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete outdated documents of %s: %w", scope.SourceID, err)
	}
	m.metrics.ObserveCleanup(scope.SourceID, "delete", n)
	return n, nil
}

// Cleanup runs MarkOutdated then DeleteOutdated.
// Both steps are attempted; the joined error is for reporting only and must not fail the cycle.
func (m *TransactionManager) Cleanup(ctx context.Context, index string, scope domain.OutdatedScope) (domain.CleanupStats, error) {
	var stats domain.CleanupStats

	marked, markErr := m.MarkOutdated(ctx, index, scope)
	stats.Marked = marked

	deleted, deleteErr := m.DeleteOutdated(ctx, index, scope)
	stats.Deleted = deleted

	err := errors.Join(markErr, deleteErr)
	if err != nil {
		stats.Error = err.Error()
		m.logger.Warn("cleanup incomplete",
			"source_id", scope.SourceID,
			"index", index,
			"marked", marked,
			"deleted", deleted,
			"error", err)
		return stats, err
	}

	m.logger.Info("cleanup completed",
		"source_id", scope.SourceID,
		"index", index,
		"marked", marked,
		"deleted", deleted)
	return stats, nil
}

func validateScope(scope domain.OutdatedScope) error {
	if scope.SourceID == "" || scope.Before.IsZero() {
		return fmt.Errorf("%w: cleanup needs a source id and a cutoff", domain.ErrInvalidInput)
	}
	return nil
}
