package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VersionStore = (*VersionStore)(nil)

const versionColumns = `source_id, version_hash, version_timestamp, version_string, etag,
	content_size, last_fetch, fetch_status, error_message`

// VersionStore implements driven.VersionStore using PostgreSQL.
// One row per source; Save replaces it in place.
type VersionStore struct {
	db *DB
}

// NewVersionStore creates a new VersionStore
func NewVersionStore(db *DB) *VersionStore {
	return &VersionStore{db: db}
}

// Get retrieves the version of a source
func (s *VersionStore) Get(ctx context.Context, sourceID string) (*domain.VersionInfo, error) {
	query := `SELECT ` + versionColumns + ` FROM source_versions WHERE source_id = $1`

	info, err := scanVersion(s.db.QueryRowContext(ctx, query, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return info, nil
}

// Save upserts the version keyed by source ID
func (s *VersionStore) Save(ctx context.Context, info *domain.VersionInfo) error {
	query := `
		INSERT INTO source_versions (` + versionColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			version_hash = EXCLUDED.version_hash,
			version_timestamp = EXCLUDED.version_timestamp,
			version_string = EXCLUDED.version_string,
			etag = EXCLUDED.etag,
			content_size = EXCLUDED.content_size,
			last_fetch = EXCLUDED.last_fetch,
			fetch_status = EXCLUDED.fetch_status,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`

	status := info.FetchStatus
	if status == "" {
		status = domain.FetchStatusPending
	}

	_, err := s.db.ExecContext(ctx, query,
		info.SourceID,
		info.VersionHash,
		NullTimeValue(info.VersionTimestamp),
		info.VersionString,
		info.ETag,
		info.ContentSize,
		NullTimeValue(info.LastFetch),
		string(status),
		info.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}
	return nil
}

// Delete removes the version of a source
func (s *VersionStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_versions WHERE source_id = $1`, sourceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*domain.VersionInfo, error) {
	var info domain.VersionInfo
	var versionTS, lastFetch sql.NullTime
	var status string

	err := row.Scan(
		&info.SourceID,
		&info.VersionHash,
		&versionTS,
		&info.VersionString,
		&info.ETag,
		&info.ContentSize,
		&lastFetch,
		&status,
		&info.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if versionTS.Valid {
		info.VersionTimestamp = versionTS.Time.UTC()
	}
	if lastFetch.Valid {
		info.LastFetch = lastFetch.Time.UTC()
	}
	info.FetchStatus = domain.FetchStatus(status)
	return &info, nil
}
