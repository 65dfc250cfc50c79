package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "sercha-sync:"

const (
	lockPrefix      = keyPrefix + "lock:"
	versionsKey     = keyPrefix + "versions"
	syncStatesKey   = keyPrefix + "sync_states"
	recordKeyPrefix = keyPrefix + "records:"
)

// recordsKey is the hash holding the processing records of one source, keyed by url_hash.
func recordsKey(sourceID string) string {
	return recordKeyPrefix + sourceID
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
