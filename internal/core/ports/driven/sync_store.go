package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// SyncStateStore persists one SyncState per source.
// It backs halting, pending cleanup retries and the scheduler's due check.
type SyncStateStore interface {
	// Get returns the state of a source, domain.ErrNotFound when it never ran
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)

	// Save replaces the whole state of a source
	Save(ctx context.Context, state *domain.SyncState) error

	// List returns all stored states ordered by source ID
	List(ctx context.Context) ([]*domain.SyncState, error)

	// Delete forgets a source; its next cycle starts from an idle state
	Delete(ctx context.Context, sourceID string) error
}
