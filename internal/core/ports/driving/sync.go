package driving

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// SyncService coordinates source synchronization
type SyncService interface {
	// SyncSource runs one cycle for a specific source
	SyncSource(ctx context.Context, sourceID string) (*domain.SyncResult, error)

	// SyncAll runs every enabled source in priority order
	SyncAll(ctx context.Context) (*domain.SyncSummary, error)

	// Resume clears the halt of a source after a critical error
	Resume(ctx context.Context, sourceID string) (*domain.SyncState, error)

	// Reset forgets the version, processing records and sync state of a source
	Reset(ctx context.Context, sourceID string) (*domain.SyncState, error)

	// GetSource retrieves a configured source
	GetSource(ctx context.Context, sourceID string) (*domain.ContentSource, error)

	// ListSources retrieves all configured sources
	ListSources(ctx context.Context) ([]*domain.ContentSource, error)

	// GetSyncState retrieves the sync state for a source
	GetSyncState(ctx context.Context, sourceID string) (*domain.SyncState, error)

	// ListSyncStates retrieves sync states for all sources
	ListSyncStates(ctx context.Context) ([]*domain.SyncState, error)

	// GetVersion retrieves the stored version of a source
	GetVersion(ctx context.Context, sourceID string) (*domain.VersionInfo, error)

	// ListItems retrieves the processing records of a listing source
	ListItems(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error)

	// Circuits returns the circuit breaker snapshot
	Circuits() []domain.CircuitSnapshot
}

// Scheduler runs due sources periodically
type Scheduler interface {
	// Start begins the scheduler loop
	Start(ctx context.Context) error

	// Stop stops the scheduler and waits for the current tick
	Stop()

	// TriggerNow runs a source immediately, ignoring its schedule
	TriggerNow(ctx context.Context, sourceID string) (*domain.SyncResult, error)
}

// TaskService queues sync requests for background workers
type TaskService interface {
	// SubmitSyncSource queues a sync of one source
	SubmitSyncSource(ctx context.Context, sourceID string) (*domain.Task, error)

	// SubmitSyncAll queues a sync of every enabled source
	SubmitSyncAll(ctx context.Context) (*domain.Task, error)

	// GetTask retrieves a queued task by ID
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
}

// Authenticator resolves API credentials to a caller
type Authenticator interface {
	// Authenticate accepts a signed token or the static API key
	Authenticate(ctx context.Context, credential string) (*domain.Principal, error)
}
