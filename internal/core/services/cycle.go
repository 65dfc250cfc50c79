package services

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
)

// DefaultIndex is the index documents go to when a source does not name one.
const DefaultIndex = "sercha-documents"

// CycleResult is what one source cycle hands back to the orchestrator.
type CycleResult struct {
	Summary *domain.CycleSummary
	// Payloads holds raw payloads for archiving, only collected when archiving is on
	Payloads []*domain.UploadPayload
}

// CycleRunner runs one cycle for a source kind.
type CycleRunner interface {
	RunCycle(ctx context.Context, source *domain.ContentSource, tracker *ErrorTracker) (*CycleResult, error)
}

// pipeline bundles the collaborators shared by the per-kind processors.
type pipeline struct {
	fetcher      driven.Fetcher
	extractor    driven.Extractor
	post         driven.PostProcessorPipeline
	versions     *VersionTracker
	transactions *TransactionManager
	exec         *resilience.Executor
	metrics      driven.MetricsRecorder
	defaultIndex string
	archive      bool
	now          func() time.Time
}

func (p *pipeline) indexFor(source *domain.ContentSource) string {
	return indexName(source, p.defaultIndex)
}

// indexName resolves the index a source writes to.
func indexName(source *domain.ContentSource, fallback string) string {
	if source.Index != "" {
		return source.Index
	}
	if fallback != "" {
		return fallback
	}
	return DefaultIndex
}

// fetch retrieves url through the executor, keyed per URL.
func (p *pipeline) fetch(ctx context.Context, source *domain.ContentSource, url string) resilience.Outcome[*domain.Payload] {
	return resilience.Run(ctx, p.exec, "http:get:"+url, func(ctx context.Context) (*domain.Payload, error) {
		return p.fetcher.Fetch(ctx, driven.FetchRequest{
			URL:     url,
			Headers: source.Headers(),
			Timeout: source.Timeout(),
		})
	})
}

// extract runs the extractor under the retry policy, then the post-processors.
// Extraction has no circuit: a bad payload fails its own item only.
func (p *pipeline) extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	var content *domain.ExtractedContent
	_, err := p.exec.Policy().Do(ctx, func(ctx context.Context) error {
		c, err := p.extractor.Extract(ctx, req)
		if err != nil {
			return err
		}
		content = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.post != nil {
		p.post.Process(content)
	}
	return content, nil
}

// buildDocument assembles the index document of one extracted payload.
func (p *pipeline) buildDocument(source *domain.ContentSource, itemKey, url, fallbackTitle string, payload *domain.Payload, content *domain.ExtractedContent, ts time.Time) *domain.IndexDocument {
	hash := domain.ComputeContentHash(payload.Body)
	title := content.Title
	if title == "" {
		title = fallbackTitle
	}
	contentType := content.MimeType
	if contentType == "" {
		contentType = payload.ContentType
	}
	metadata := map[string]string{
		"source_name": source.Name,
		"source_kind": string(source.Kind),
	}
	for k, v := range content.Fields {
		metadata[k] = v
	}
	return &domain.IndexDocument{
		ID:          domain.DocumentID(source.ID, itemKey, hash),
		SourceID:    source.ID,
		ItemKey:     itemKey,
		URL:         url,
		Title:       title,
		Content:     content.Text,
		ContentType: contentType,
		ContentHash: hash,
		Timestamp:   ts,
		Metadata:    metadata,
	}
}

// archivePayload builds the blob of a raw payload when archiving is on.
func (p *pipeline) archivePayload(source *domain.ContentSource, name, hash string, payload *domain.Payload) *domain.UploadPayload {
	if !p.archive {
		return nil
	}
	ext := path.Ext(name)
	return &domain.UploadPayload{
		Key:         fmt.Sprintf("%s/%s%s", source.ID, hash, ext),
		Body:        payload.Body,
		ContentType: payload.ContentType,
		Metadata: map[string]string{
			"source-id": source.ID,
			"url":       payload.URL,
			"filename":  name,
		},
	}
}

// cycleTimestamp is the timestamp every document written in a cycle carries.
// Millisecond precision survives every index backend unchanged.
func cycleTimestamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}

// fetchSeverity maps a failed listing or document fetch to its operational severity.
// A non-retryable failure means the configured location is wrong, which halts the source.
func fetchSeverity(kind resilience.Kind) domain.Severity {
	if kind == resilience.KindFatal {
		return domain.SeverityCritical
	}
	return domain.SeverityError
}
