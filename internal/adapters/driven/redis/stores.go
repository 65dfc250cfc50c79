package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.VersionStore    = (*VersionStore)(nil)
	_ driven.ProcessingStore = (*ProcessingStore)(nil)
	_ driven.SyncStateStore  = (*SyncStateStore)(nil)
)

// VersionStore keeps one JSON VersionInfo per source in a single hash.
type VersionStore struct {
	client *redis.Client
}

// NewVersionStore creates a Redis-backed VersionStore
func NewVersionStore(client *redis.Client) *VersionStore {
	return &VersionStore{client: client}
}

// Get retrieves the version of a source
func (s *VersionStore) Get(ctx context.Context, sourceID string) (*domain.VersionInfo, error) {
	var info domain.VersionInfo
	if err := hget(ctx, s.client, versionsKey, sourceID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Save replaces the version of a source
func (s *VersionStore) Save(ctx context.Context, info *domain.VersionInfo) error {
	return hset(ctx, s.client, versionsKey, info.SourceID, info)
}

// Delete removes the version of a source
func (s *VersionStore) Delete(ctx context.Context, sourceID string) error {
	return s.client.HDel(ctx, versionsKey, sourceID).Err()
}

// ProcessingStore keeps the records of each source in its own hash keyed by url_hash.
type ProcessingStore struct {
	client *redis.Client
}

// NewProcessingStore creates a Redis-backed ProcessingStore
func NewProcessingStore(client *redis.Client) *ProcessingStore {
	return &ProcessingStore{client: client}
}

// Get retrieves one record
func (s *ProcessingStore) Get(ctx context.Context, sourceID, urlHash string) (*domain.ProcessingRecord, error) {
	var rec domain.ProcessingRecord
	if err := hget(ctx, s.client, recordsKey(sourceID), urlHash, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save upserts a record
func (s *ProcessingStore) Save(ctx context.Context, rec *domain.ProcessingRecord) error {
	return hset(ctx, s.client, recordsKey(rec.SourceID), rec.URLHash, rec)
}

// ListBySource retrieves all records of a source, newest first
func (s *ProcessingStore) ListBySource(ctx context.Context, sourceID string) ([]*domain.ProcessingRecord, error) {
	values, err := hgetAll(ctx, s.client, recordsKey(sourceID))
	if err != nil {
		return nil, err
	}
	records := make([]*domain.ProcessingRecord, 0, len(values))
	for _, raw := range values {
		var rec domain.ProcessingRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal processing record: %w", err)
		}
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ProcessingTimestamp.Equal(records[j].ProcessingTimestamp) {
			return records[i].ProcessingTimestamp.After(records[j].ProcessingTimestamp)
		}
		return records[i].URLHash < records[j].URLHash
	})
	return records, nil
}

// DeleteBySource removes all records of a source
func (s *ProcessingStore) DeleteBySource(ctx context.Context, sourceID string) error {
	return s.client.Del(ctx, recordsKey(sourceID)).Err()
}

// Ping checks the backend is reachable
func (s *ProcessingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SyncStateStore keeps one JSON SyncState per source in a single hash.
type SyncStateStore struct {
	client *redis.Client
}

// NewSyncStateStore creates a Redis-backed SyncStateStore
func NewSyncStateStore(client *redis.Client) *SyncStateStore {
	return &SyncStateStore{client: client}
}

// Save creates or updates sync state
func (s *SyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	return hset(ctx, s.client, syncStatesKey, state.SourceID, state)
}

// Get retrieves sync state for a source
func (s *SyncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	var state domain.SyncState
	if err := hget(ctx, s.client, syncStatesKey, sourceID, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// List retrieves sync states for all sources
func (s *SyncStateStore) List(ctx context.Context) ([]*domain.SyncState, error) {
	values, err := hgetAll(ctx, s.client, syncStatesKey)
	if err != nil {
		return nil, err
	}
	states := make([]*domain.SyncState, 0, len(values))
	for _, raw := range values {
		var state domain.SyncState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sync state: %w", err)
		}
		states = append(states, &state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SourceID < states[j].SourceID })
	return states, nil
}

// Delete deletes sync state for a source
func (s *SyncStateStore) Delete(ctx context.Context, sourceID string) error {
	return s.client.HDel(ctx, syncStatesKey, sourceID).Err()
}

func hget(ctx context.Context, client *redis.Client, key, field string, dst any) error {
	raw, err := client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func hset(ctx context.Context, client *redis.Client, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func hgetAll(ctx context.Context, client *redis.Client, key string) (map[string]string, error) {
	values, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return values, nil
}
