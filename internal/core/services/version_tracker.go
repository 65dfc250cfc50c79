package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// VersionTracker answers "has this changed?" for sources and discovered items.
// It is the gate for idempotent reprocessing: unchanged content never reaches
// the extractor or the index.
type VersionTracker struct {
	store   driven.VersionStore
	records driven.ProcessingStore
	logger  *slog.Logger
	now     func() time.Time
}

// VersionTrackerConfig holds dependencies for VersionTracker.
type VersionTrackerConfig struct {
	Store   driven.VersionStore
	Records driven.ProcessingStore
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewVersionTracker creates a new version tracker.
func NewVersionTracker(cfg VersionTrackerConfig) *VersionTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &VersionTracker{
		store:   cfg.Store,
		records: cfg.Records,
		logger:  logger,
		now:     now,
	}
}

// GetVersion returns the current version of a source, or nil when it was never fetched.
func (t *VersionTracker) GetVersion(ctx context.Context, sourceID string) (*domain.VersionInfo, error) {
	info, err := t.store.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return info, nil
}

// UpdateVersion upserts the version of a source.
func (t *VersionTracker) UpdateVersion(ctx context.Context, info *domain.VersionInfo) error {
	if info.SourceID == "" {
		return fmt.Errorf("%w: version without source id", domain.ErrInvalidInput)
	}
	if err := t.store.Save(ctx, info); err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}
	return nil
}

// HasChanged reports whether newHash differs from the stored hash.
// An unseen source has always changed.
func (t *VersionTracker) HasChanged(ctx context.Context, sourceID, newHash string) (bool, error) {
	current, err := t.GetVersion(ctx, sourceID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return true, nil
	}
	return current.VersionHash != newHash, nil
}

// HasChangedVersion compares a freshly built version with the stored one using the
// source's versioning strategy. A source whose last good version has no hash has changed.
func (t *VersionTracker) HasChangedVersion(ctx context.Context, strategy domain.VersioningStrategy, next *domain.VersionInfo) (bool, error) {
	current, err := t.GetVersion(ctx, next.SourceID)
	if err != nil {
		return false, err
	}
	if current == nil || current.VersionHash == "" {
		return true, nil
	}

	switch strategy {
	case domain.VersioningETag:
		if next.ETag != "" && current.ETag != "" {
			return next.ETag != current.ETag, nil
		}
		return next.VersionHash != current.VersionHash, nil
	case domain.VersioningVersionString:
		return next.VersionString != current.VersionString, nil
	case domain.VersioningTimestamp:
		return !next.VersionTimestamp.Equal(current.VersionTimestamp), nil
	case domain.VersioningCombined:
		return next.VersionHash != current.VersionHash ||
			!next.VersionTimestamp.Equal(current.VersionTimestamp), nil
	default:
		return next.VersionHash != current.VersionHash, nil
	}
}

// BuildVersion derives a VersionInfo from a fetched payload.
// The version timestamp is the origin's Last-Modified when present, else the fetch time.
func (t *VersionTracker) BuildVersion(source *domain.ContentSource, payload *domain.Payload) *domain.VersionInfo {
	fetched := payload.FetchedAt
	if fetched.IsZero() {
		fetched = t.now()
	}
	ts := fetched
	if payload.LastModified != nil {
		ts = *payload.LastModified
	}
	return &domain.VersionInfo{
		SourceID:         source.ID,
		VersionHash:      domain.ComputeContentHash(payload.Body),
		VersionTimestamp: ts.UTC(),
		VersionString:    source.VersionString,
		ETag:             payload.ETag,
		ContentSize:      payload.Size(),
		LastFetch:        fetched.UTC(),
		FetchStatus:      domain.FetchStatusSuccess,
	}
}

// RecordFetch stamps a successful fetch of unchanged content without replacing the version.
func (t *VersionTracker) RecordFetch(ctx context.Context, sourceID string) error {
	current, err := t.GetVersion(ctx, sourceID)
	if err != nil || current == nil {
		return err
	}
	current.LastFetch = t.now().UTC()
	current.FetchStatus = domain.FetchStatusSuccess
	current.ErrorMessage = ""
	return t.UpdateVersion(ctx, current)
}

// RecordFailure marks the last fetch of a source as failed.
// The stored hash is kept so change detection stays correct on the next attempt.
func (t *VersionTracker) RecordFailure(ctx context.Context, sourceID string, cause error) error {
	current, err := t.GetVersion(ctx, sourceID)
	if err != nil {
		return err
	}
	if current == nil {
		current = &domain.VersionInfo{SourceID: sourceID}
	}
	current.LastFetch = t.now().UTC()
	current.FetchStatus = domain.FetchStatusFailed
	if cause != nil {
		current.ErrorMessage = cause.Error()
	}
	return t.UpdateVersion(ctx, current)
}

// ShouldProcess reports whether a discovered item still needs work.
// Completed items are skipped; failed or interrupted ones are picked up again.
func (t *VersionTracker) ShouldProcess(ctx context.Context, sourceID, urlHash string) (bool, *domain.ProcessingRecord, error) {
	rec, err := t.records.Get(ctx, sourceID, urlHash)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to get processing record: %w", err)
	}
	if rec.Status == domain.ProcessingCompleted {
		return false, rec, nil
	}
	if rec.Status != domain.ProcessingFailed {
		t.logger.Info("resuming interrupted item",
			"source_id", sourceID,
			"url_hash", urlHash,
			"status", rec.Status)
	}
	return true, rec, nil
}

// Forget drops the stored version and every processing record of a source.
// Its next cycle treats all content as new.
func (t *VersionTracker) Forget(ctx context.Context, sourceID string) error {
	if err := t.store.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	if t.records != nil {
		if err := t.records.DeleteBySource(ctx, sourceID); err != nil {
			return fmt.Errorf("failed to delete processing records: %w", err)
		}
	}
	t.logger.Info("source version forgotten", "source_id", sourceID)
	return nil
}
