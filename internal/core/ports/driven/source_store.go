package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// SourceStore is the read-only catalog of configured sources
type SourceStore interface {
	// Get retrieves a source by ID
	Get(ctx context.Context, id string) (*domain.ContentSource, error)

	// List retrieves all sources ordered by priority (lower first)
	List(ctx context.Context) ([]*domain.ContentSource, error)
}
