package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// DocumentProcessor syncs sources that are a single document: an HTML page,
// a standalone file or a spreadsheet. The source's VersionInfo decides whether
// anything downstream of the fetch runs at all.
type DocumentProcessor struct {
	pipeline
	logger *slog.Logger
}

// DocumentProcessorConfig holds dependencies for DocumentProcessor.
type DocumentProcessorConfig struct {
	Fetcher      driven.Fetcher
	Extractor    driven.Extractor
	Versions     *VersionTracker
	Transactions *TransactionManager
	Executor     *resilience.Executor
	Metrics      driven.MetricsRecorder
	DefaultIndex string
	Archive      bool
	Logger       *slog.Logger
	Now          func() time.Time

	// PostProcessors is optional; it cleans extracted text before indexing
	PostProcessors driven.PostProcessorPipeline
}

// NewDocumentProcessor creates a new single document processor.
func NewDocumentProcessor(cfg DocumentProcessorConfig) *DocumentProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	exec := cfg.Executor
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultRetryPolicy(), nil, logger)
	}
	return &DocumentProcessor{
		pipeline: pipeline{
			fetcher:      cfg.Fetcher,
			extractor:    cfg.Extractor,
			versions:     cfg.Versions,
			transactions: cfg.Transactions,
			exec:         exec,
			metrics:      metrics,
			defaultIndex: cfg.DefaultIndex,
			post:         cfg.PostProcessors,
			archive:      cfg.Archive,
			now:          now,
		},
		logger: logger,
	}
}

// RunCycle fetches the document, skips it when its version is unchanged, and
// otherwise extracts, indexes and reconciles it.
func (p *DocumentProcessor) RunCycle(ctx context.Context, source *domain.ContentSource, tracker *ErrorTracker) (*CycleResult, error) {
	if source.Kind.IsDiscovery() {
		return nil, fmt.Errorf("%w: %s is a listing source", domain.ErrUnsupportedKind, source.Kind)
	}

	start := p.now()
	summary := &domain.CycleSummary{
		SourceID:   source.ID,
		StartedAt:  start,
		Discovered: 1,
		Errors:     []domain.ItemError{},
	}
	result := &CycleResult{Summary: summary}
	defer func() { summary.Duration = p.now().Sub(start) }()

	logger := p.logger.With("source_id", source.ID, "kind", source.Kind)
	url := source.URL()
	itemKey := domain.ComputeURLHash(url)

	fail := func(stage string, kind domain.ErrorKind, severity domain.Severity, err error) (*CycleResult, error) {
		summary.Failed++
		summary.Errors = append(summary.Errors, domain.ItemError{URL: url, URLHash: itemKey, Stage: stage, Error: err.Error()})
		tracker.Track(source.ID, kind, severity, err, map[string]string{"url": url, "stage": stage})
		if rerr := p.versions.RecordFailure(context.WithoutCancel(ctx), source.ID, err); rerr != nil {
			logger.Warn("failed to record fetch failure", "error", rerr)
		}
		p.metrics.ObserveItem(source.ID, domain.ProcessingFailed)
		return result, err
	}

	download := p.fetch(ctx, source, url)
	if !download.OK() {
		severity := fetchSeverity(download.Kind)
		if errors.Is(download.Err, context.Canceled) {
			severity = domain.SeverityError
		}
		return fail(stageDownload, domain.ErrorKindSourceFetch, severity, fmt.Errorf("failed to fetch %s: %w", url, download.Err))
	}
	payload := download.Value

	next := p.versions.BuildVersion(source, payload)
	changed, err := p.versions.HasChangedVersion(ctx, source.VersioningStrategy, next)
	if err != nil {
		return fail(stageRecord, domain.ErrorKindIndex, domain.SeverityError, err)
	}
	if !changed {
		summary.Skipped++
		if err := p.versions.RecordFetch(ctx, source.ID); err != nil {
			logger.Warn("failed to stamp unchanged fetch", "error", err)
		}
		logger.Info("content unchanged, skipping", "version_hash", next.VersionHash)
		return result, nil
	}

	// past this point the work runs to completion even if ctx is cancelled
	ctx = context.WithoutCancel(ctx)
	ts := cycleTimestamp(start)
	name := path.Base(url)

	content, err := p.extract(ctx, domain.ExtractRequest{Source: source, Filename: name, Payload: payload})
	if err != nil {
		return fail(stageExtract, domain.ErrorKindDocumentParse, domain.SeverityError, fmt.Errorf("failed to extract %s: %w", url, err))
	}

	doc := p.buildDocument(source, itemKey, url, source.Name, payload, content, ts)
	id, err := p.transactions.UpsertNewVersion(ctx, p.indexFor(source), doc)
	if err != nil {
		return fail(stageIndex, domain.ErrorKindIndex, domain.SeverityError, err)
	}
	summary.Processed++
	p.metrics.ObserveItem(source.ID, domain.ProcessingCompleted)

	scope := domain.OutdatedScope{SourceID: source.ID, Before: ts}
	stats, cerr := p.transactions.Cleanup(ctx, p.indexFor(source), scope)
	stats.Scope = scope
	summary.Cleanup = &stats
	if cerr != nil {
		tracker.Track(source.ID, domain.ErrorKindCleanup, domain.SeverityWarning, cerr, nil)
	}

	if err := p.versions.UpdateVersion(ctx, next); err != nil {
		// the next cycle sees a change again and repeats the idempotent upsert
		logger.Warn("failed to store version", "error", err)
	}

	if upload := p.archivePayload(source, name, doc.ContentHash, payload); upload != nil {
		result.Payloads = append(result.Payloads, upload)
	}

	logger.Info("document synced", "document_id", id, "version_hash", next.VersionHash)
	return result, nil
}
