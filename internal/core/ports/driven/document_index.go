package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// DocumentIndex is the external document index (Elasticsearch or Vespa).
// Bulk operations are always scoped by source ID.
type DocumentIndex interface {
	// Upsert writes a document under doc.ID and returns the id assigned by the index
	Upsert(ctx context.Context, index string, doc *domain.IndexDocument) (string, error)

	// Get retrieves a document by id
	Get(ctx context.Context, index, id string) (*domain.IndexDocument, error)

	// MarkStale sets stale=true on documents matching scope and returns how many were updated
	MarkStale(ctx context.Context, index string, scope domain.OutdatedScope) (int, error)

	// DeleteOutdated removes documents matching scope and returns how many were deleted
	DeleteOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error)

	// CountBySource counts documents of a source, optionally only the non-stale ones
	CountBySource(ctx context.Context, index, sourceID string, currentOnly bool) (int, error)

	// HealthCheck verifies the index is available
	HealthCheck(ctx context.Context) error
}
