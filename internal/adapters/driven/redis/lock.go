package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*Lock)(nil)

// Lock implements DistributedLock on SET NX PX.
//
// Every acquisition writes a fresh token "<owner>/<nonce>" and remembers it, so
// a release or extension only touches the exact hold it came from. A late
// release after the TTL ran out cannot drop a lock that another cycle of the
// same process has taken since.
type Lock struct {
	client  *redis.Client
	ownerID string

	mu     sync.Mutex
	tokens map[string]string
}

// NewLock creates a lock bound to this process.
func NewLock(client *redis.Client) *Lock {
	host, _ := os.Hostname()
	return &Lock{
		client:  client,
		ownerID: fmt.Sprintf("%s:%d:%s", host, os.Getpid(), nonce()),
		tokens:  make(map[string]string),
	}
}

func nonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire takes the lock if nobody holds it. It is not reentrant.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := l.ownerID + "/" + nonce()
	ok, err := l.client.SetNX(ctx, lockPrefix+name, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[name] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// compare-and-delete / compare-and-pexpire on the stored token
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("del", KEYS[1])
`)
	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("pexpire", KEYS[1], ARGV[2])
`)
)

// Release drops a hold taken by this instance. Locks it never took, or whose
// hold was lost to expiry, are left alone.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := releaseScript.Run(ctx, l.client, []string{lockPrefix + name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Extend pushes the expiry of a hold this instance still owns.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("lock %s not held by this instance", name)
	}

	n, err := extendScript.Run(ctx, l.client, []string{lockPrefix + name}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s expired and was taken over", name)
	}
	return nil
}

// Ping checks the redis connection.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID identifies this process in lock values.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
