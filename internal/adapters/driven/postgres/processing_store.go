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
var _ driven.ProcessingStore = (*ProcessingStore)(nil)

const recordColumns = `source_id, url_hash, url, filename, status, processing_timestamp,
	content_hash, index_document_id, error_message`

// ProcessingStore implements driven.ProcessingStore using PostgreSQL
type ProcessingStore struct {
	db *DB
}

// NewProcessingStore creates a new ProcessingStore
func NewProcessingStore(db *DB) *ProcessingStore {
	return &ProcessingStore{db: db}
}

// Get retrieves one record by source and URL hash
func (s *ProcessingStore) Get(ctx context.Context, sourceID, urlHash string) (*domain.ProcessingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM processing_records WHERE source_id = $1 AND url_hash = $2`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, sourceID, urlHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing record: %w", err)
	}
	return rec, nil
}

// Save upserts a record
func (s *ProcessingStore) Save(ctx context.Context, rec *domain.ProcessingRecord) error {
	query := `
		INSERT INTO processing_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id, url_hash) DO UPDATE SET
			url = EXCLUDED.url,
			filename = EXCLUDED.filename,
			status = EXCLUDED.status,
			processing_timestamp = EXCLUDED.processing_timestamp,
			content_hash = EXCLUDED.content_hash,
			index_document_id = EXCLUDED.index_document_id,
			error_message = EXCLUDED.error_message
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.SourceID,
		rec.URLHash,
		rec.URL,
		rec.Filename,
		string(rec.Status),
		rec.ProcessingTimestamp,
		rec.ContentHash,
		rec.IndexDocumentID,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save processing record: %w", err)
	}
	return nil
}

// ListBySource retrieves all records of a source, newest first
func (s *ProcessingStore) ListBySource(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM processing_records
		WHERE source_id = $1
		ORDER BY processing_timestamp DESC, url_hash`

	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteBySource removes all records of a source
func (s *ProcessingStore) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM processing_records WHERE source_id = $1`, sourceID)
	return err
}

// Ping checks the database is reachable
func (s *ProcessingStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanRecord(row rowScanner) (*domain.ProcessingRecord, error) {
	var rec domain.ProcessingRecord
	var status string

	err := row.Scan(
		&rec.SourceID,
		&rec.URLHash,
		&rec.URL,
		&rec.Filename,
		&status,
		&rec.ProcessingTimestamp,
		&rec.ContentHash,
		&rec.IndexDocumentID,
		&rec.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.ProcessingStatus(status)
	rec.ProcessingTimestamp = rec.ProcessingTimestamp.UTC()
	return &rec, nil
}
