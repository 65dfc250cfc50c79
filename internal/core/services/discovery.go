package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// Item stages reported in cycle errors.
const (
	stageDownload = "download"
	stageExtract  = "extract"
	stageIndex    = "index"
	stageRecord   = "record"
)

// DiscoveryProcessor syncs listing sources (HTML and PDF index pages).
//
// A cycle fetches the listing, enumerates candidates by URL hash, skips the ones
// already completed and walks the rest one at a time through
// discovered → downloading → downloaded → processing → completed | failed,
// persisting each transition. After the loop the outdated versions of the
// processed items are cleaned up.
type DiscoveryProcessor struct {
	pipeline
	links   driven.LinkExtractor
	records driven.ProcessingStore
	logger  *slog.Logger
}

// DiscoveryProcessorConfig holds dependencies for DiscoveryProcessor.
type DiscoveryProcessorConfig struct {
	Fetcher      driven.Fetcher
	Links        driven.LinkExtractor
	Extractor    driven.Extractor
	Records      driven.ProcessingStore
	Versions     *VersionTracker
	Transactions *TransactionManager
	Executor     *resilience.Executor
	Metrics      driven.MetricsRecorder
	DefaultIndex string
	// Archive collects raw payloads for bulk upload
	Archive bool
	Logger  *slog.Logger
	Now     func() time.Time

	// PostProcessors is optional; it cleans extracted text before indexing
	PostProcessors driven.PostProcessorPipeline
}

// NewDiscoveryProcessor creates a new discovery processor.
func NewDiscoveryProcessor(cfg DiscoveryProcessorConfig) *DiscoveryProcessor {
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
	return &DiscoveryProcessor{
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
		links:   cfg.Links,
		records: cfg.Records,
		logger:  logger,
	}
}

// RunCycle runs one discovery cycle for source.
// It returns an error only when the source as a whole failed (listing unreachable or
// unparsable); item failures are recorded and reported in the summary.
// Cancelling ctx stops new items from starting; the item in flight runs to completion.
func (p *DiscoveryProcessor) RunCycle(ctx context.Context, source *domain.ContentSource, tracker *ErrorTracker) (*CycleResult, error) {
	if !source.Kind.IsDiscovery() {
		return nil, fmt.Errorf("%w: %s is not a listing source", domain.ErrUnsupportedKind, source.Kind)
	}

	start := p.now()
	ts := cycleTimestamp(start)
	summary := &domain.CycleSummary{
		SourceID:  source.ID,
		StartedAt: start,
		Errors:    []domain.ItemError{},
	}
	result := &CycleResult{Summary: summary}
	defer func() { summary.Duration = p.now().Sub(start) }()

	logger := p.logger.With("source_id", source.ID, "kind", source.Kind)

	// Step 1: fetch the listing
	listing := p.fetch(ctx, source, source.URL())
	if !listing.OK() {
		severity := fetchSeverity(listing.Kind)
		if errors.Is(listing.Err, context.Canceled) {
			severity = domain.SeverityError
		}
		tracker.Track(source.ID, domain.ErrorKindSourceFetch, severity, listing.Err, map[string]string{
			"url":      source.URL(),
			"outcome":  listing.Kind.String(),
			"attempts": fmt.Sprint(listing.Attempts),
		})
		if p.versions != nil {
			if err := p.versions.RecordFailure(ctx, source.ID, listing.Err); err != nil {
				logger.Warn("failed to record listing failure", "error", err)
			}
		}
		return result, fmt.Errorf("failed to fetch listing %s: %w", source.URL(), listing.Err)
	}
	p.recordListingVersion(ctx, logger, source, listing.Value)

	// Step 2: enumerate candidates
	items, err := p.links.ExtractLinks(source, listing.Value)
	if err != nil {
		tracker.Track(source.ID, domain.ErrorKindDocumentParse, domain.SeverityError, err, map[string]string{"url": source.URL()})
		return result, fmt.Errorf("failed to parse listing %s: %w", source.URL(), err)
	}
	items = dedupeItems(items)
	summary.Discovered = len(items)
	if len(items) == 0 {
		logger.Info("listing has no candidates")
		return result, nil
	}

	var processedKeys []string
	var latest time.Time

	for _, item := range items {
		if ctx.Err() != nil {
			logger.Info("cycle cancelled, not starting remaining items",
				"remaining", len(items)-summary.Processed-summary.Failed-summary.Skipped)
			break
		}

		// Step 3: skip what is already done
		process, _, err := p.versions.ShouldProcess(ctx, source.ID, item.URLHash)
		if err != nil {
			p.itemFailed(summary, tracker, source, item, stageRecord, domain.ErrorKindIndex, err)
			continue
		}
		if !process {
			summary.Skipped++
			continue
		}

		// Step 4: process the item; in-flight work is not cancelled
		doc, upload, stage, err := p.processItem(context.WithoutCancel(ctx), source, item, ts)
		if err != nil {
			kind := domain.ErrorKindSourceFetch
			switch stage {
			case stageExtract:
				kind = domain.ErrorKindDocumentParse
			case stageIndex, stageRecord:
				kind = domain.ErrorKindIndex
			}
			p.itemFailed(summary, tracker, source, item, stage, kind, err)
			continue
		}

		summary.Processed++
		p.metrics.ObserveItem(source.ID, domain.ProcessingCompleted)
		processedKeys = append(processedKeys, doc.ItemKey)
		if doc.Timestamp.After(latest) {
			latest = doc.Timestamp
		}
		if upload != nil {
			result.Payloads = append(result.Payloads, upload)
		}
	}

	// Step 5: clean up the versions the processed items replaced
	if summary.Processed > 0 {
		scope := domain.OutdatedScope{
			SourceID: source.ID,
			ItemKeys: processedKeys,
			Before:   latest,
		}
		stats, err := p.transactions.Cleanup(context.WithoutCancel(ctx), p.indexFor(source), scope)
		stats.Scope = scope
		summary.Cleanup = &stats
		if err != nil {
			tracker.Track(source.ID, domain.ErrorKindCleanup, domain.SeverityWarning, err, nil)
		}
	}

	// Step 6: summary
	logger.Info("discovery cycle finished",
		"discovered", summary.Discovered,
		"skipped", summary.Skipped,
		"processed", summary.Processed,
		"failed", summary.Failed)
	return result, nil
}

// processItem walks one item through its lifecycle.
// It returns the stage that failed together with the error.
func (p *DiscoveryProcessor) processItem(ctx context.Context, source *domain.ContentSource, item domain.DiscoveredItem, ts time.Time) (*domain.IndexDocument, *domain.UploadPayload, string, error) {
	rec := domain.NewProcessingRecord(source.ID, item)
	if err := p.records.Save(ctx, rec); err != nil {
		return nil, nil, stageRecord, fmt.Errorf("failed to save processing record: %w", err)
	}

	fail := func(stage string, err error) (*domain.IndexDocument, *domain.UploadPayload, string, error) {
		rec.Fail(err.Error(), p.now())
		if serr := p.records.Save(ctx, rec); serr != nil {
			p.logger.Warn("failed to persist failed item",
				"source_id", source.ID,
				"url_hash", item.URLHash,
				"error", serr)
		}
		return nil, nil, stage, err
	}

	if err := p.advance(ctx, rec, domain.ProcessingDownloading); err != nil {
		return fail(stageRecord, err)
	}
	download := p.fetch(ctx, source, item.URL)
	if !download.OK() {
		return fail(stageDownload, fmt.Errorf("failed to download %s: %w", item.URL, download.Err))
	}
	payload := download.Value
	if err := p.advance(ctx, rec, domain.ProcessingDownloaded); err != nil {
		return fail(stageRecord, err)
	}

	if err := p.advance(ctx, rec, domain.ProcessingProcessing); err != nil {
		return fail(stageRecord, err)
	}
	content, err := p.extract(ctx, domain.ExtractRequest{
		Source:   source,
		Filename: item.Filename,
		Payload:  payload,
	})
	if err != nil {
		return fail(stageExtract, fmt.Errorf("failed to extract %s: %w", item.Filename, err))
	}

	title := item.LinkText
	if title == "" {
		title = item.Filename
	}
	doc := p.buildDocument(source, item.URLHash, item.URL, title, payload, content, ts)
	doc.Metadata["filename"] = item.Filename
	if item.LinkText != "" {
		doc.Metadata["link_text"] = item.LinkText
	}

	id, err := p.transactions.UpsertNewVersion(ctx, p.indexFor(source), doc)
	if err != nil {
		return fail(stageIndex, err)
	}
	doc.ID = id

	if err := rec.Complete(doc.ContentHash, id, p.now()); err != nil {
		return fail(stageRecord, err)
	}
	if err := p.records.Save(ctx, rec); err != nil {
		// the document is indexed; the next cycle repeats the idempotent upsert
		return nil, nil, stageRecord, fmt.Errorf("failed to save completed record: %w", err)
	}

	p.logger.Debug("item completed",
		"source_id", source.ID,
		"url_hash", item.URLHash,
		"document_id", id)
	return doc, p.archivePayload(source, item.Filename, doc.ContentHash, payload), "", nil
}

func (p *DiscoveryProcessor) advance(ctx context.Context, rec *domain.ProcessingRecord, next domain.ProcessingStatus) error {
	if err := rec.Transition(next, p.now()); err != nil {
		return err
	}
	if err := p.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save processing record: %w", err)
	}
	return nil
}

func (p *DiscoveryProcessor) itemFailed(summary *domain.CycleSummary, tracker *ErrorTracker, source *domain.ContentSource, item domain.DiscoveredItem, stage string, kind domain.ErrorKind, err error) {
	summary.Failed++
	summary.Errors = append(summary.Errors, domain.ItemError{
		URL:     item.URL,
		URLHash: item.URLHash,
		Stage:   stage,
		Error:   err.Error(),
	})
	tracker.Track(source.ID, kind, domain.SeverityError, err, map[string]string{
		"url":      item.URL,
		"url_hash": item.URLHash,
		"stage":    stage,
	})
	p.metrics.ObserveItem(source.ID, domain.ProcessingFailed)
}

// recordListingVersion keeps the source-level version current for observability.
// It never short-circuits the cycle: failed items must still be retried.
func (p *DiscoveryProcessor) recordListingVersion(ctx context.Context, logger *slog.Logger, source *domain.ContentSource, page *domain.Payload) {
	if p.versions == nil {
		return
	}
	if err := p.versions.UpdateVersion(ctx, p.versions.BuildVersion(source, page)); err != nil {
		logger.Warn("failed to record listing version", "error", err)
	}
}

func dedupeItems(items []domain.DiscoveredItem) []domain.DiscoveredItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, ok := seen[item.URLHash]; ok {
			continue
		}
		seen[item.URLHash] = struct{}{}
		out = append(out, item)
	}
	return out
}
