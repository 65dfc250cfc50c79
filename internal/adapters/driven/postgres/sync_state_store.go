package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

const syncStateColumns = `source_id, status, last_sync_at, next_sync_at, stats, error,
	pending_cleanup, started_at, completed_at`

// SyncStateStore implements driven.SyncStateStore using PostgreSQL
type SyncStateStore struct {
	db *DB
}

// NewSyncStateStore creates a new SyncStateStore
func NewSyncStateStore(db *DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Save creates or updates sync state
func (s *SyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	statsJSON, err := json.Marshal(state.Stats)
	if err != nil {
		return err
	}
	pending := state.PendingCleanup
	if pending == nil {
		pending = []domain.OutdatedScope{}
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sync_states (` + syncStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_sync_at = EXCLUDED.last_sync_at,
			next_sync_at = EXCLUDED.next_sync_at,
			stats = EXCLUDED.stats,
			error = EXCLUDED.error,
			pending_cleanup = EXCLUDED.pending_cleanup,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		state.SourceID,
		string(state.Status),
		NullTime(state.LastSyncAt),
		NullTime(state.NextSyncAt),
		statsJSON,
		state.Error,
		pendingJSON,
		NullTime(state.StartedAt),
		NullTime(state.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// Get retrieves sync state for a source
func (s *SyncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states WHERE source_id = $1`

	state, err := scanSyncState(s.db.QueryRowContext(ctx, query, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// List retrieves sync states for all sources
func (s *SyncStateStore) List(ctx context.Context) ([]*domain.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states ORDER BY last_sync_at DESC NULLS LAST`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer rows.Close()

	var states []*domain.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Delete deletes sync state for a source
func (s *SyncStateStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_states WHERE source_id = $1`, sourceID)
	return err
}

func scanSyncState(row rowScanner) (*domain.SyncState, error) {
	var state domain.SyncState
	var status string
	var lastSyncAt, nextSyncAt, startedAt, completedAt sql.NullTime
	var statsJSON, pendingJSON []byte

	err := row.Scan(
		&state.SourceID,
		&status,
		&lastSyncAt,
		&nextSyncAt,
		&statsJSON,
		&state.Error,
		&pendingJSON,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	state.Status = domain.SyncStatus(status)
	state.LastSyncAt = TimePtr(lastSyncAt)
	state.NextSyncAt = TimePtr(nextSyncAt)
	state.StartedAt = TimePtr(startedAt)
	state.CompletedAt = TimePtr(completedAt)

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &state.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode sync stats: %w", err)
		}
	}
	if len(pendingJSON) > 0 {
		if err := json.Unmarshal(pendingJSON, &state.PendingCleanup); err != nil {
			return nil, fmt.Errorf("failed to decode pending cleanup: %w", err)
		}
		if len(state.PendingCleanup) == 0 {
			state.PendingCleanup = nil
		}
	}
	return &state, nil
}
