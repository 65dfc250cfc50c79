package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// VersionStore persists the current VersionInfo of each source (PostgreSQL or Redis)
type VersionStore interface {
	// Get retrieves the version of a source, domain.ErrNotFound when unseen
	Get(ctx context.Context, sourceID string) (*domain.VersionInfo, error)

	// Save upserts the version keyed by source ID
	Save(ctx context.Context, info *domain.VersionInfo) error

	// Delete removes the version of a source
	Delete(ctx context.Context, sourceID string) error
}

// ProcessingStore persists ProcessingRecords keyed by source ID and URL hash
type ProcessingStore interface {
	// Get retrieves one record, domain.ErrNotFound when the item was never seen
	Get(ctx context.Context, sourceID, urlHash string) (*domain.ProcessingRecord, error)

	// Save upserts a record
	Save(ctx context.Context, rec *domain.ProcessingRecord) error

	// ListBySource retrieves all records of a source
	ListBySource(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error)

	// DeleteBySource removes all records of a source
	DeleteBySource(ctx context.Context, sourceID string) error

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}
