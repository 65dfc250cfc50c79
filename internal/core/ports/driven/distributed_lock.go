package driven

import (
	"context"
	"time"
)

// DistributedLock is a named, expiring lock shared by every sercha-sync instance.
//
// Lock names in use:
//   - "scheduler": held by the instance that runs scheduled cycles
//   - "sync:<source_id>": held for the duration of one cycle of that source
type DistributedLock interface {
	// Acquire takes name for ttl. It returns false, nil when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release gives name up. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock to now+ttl.
	// It fails when this instance no longer holds name.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
