package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// FetchRequest describes one GET against an origin.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// Fetcher retrieves listing pages and payloads.
// http(s) URLs go over the network, file:// URLs are read from local disk.
// Retryable failures wrap domain.ErrTransient or domain.ErrRateLimited.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*domain.Payload, error)
}

// LinkExtractor turns a fetched listing page into candidate items for a source.
type LinkExtractor interface {
	ExtractLinks(source *domain.ContentSource, page *domain.Payload) ([]domain.DiscoveredItem, error)
}

// Extractor turns a raw payload into text and fields.
// It may be slow and may be rate limited.
type Extractor interface {
	Extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error)
}
