// Package resilience provides the retry policy and circuit breaker that guard
// every origin fetch and index operation of a sync run.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// RetryPolicy executes an operation up to MaxAttempts times with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts includes the initial attempt
	MaxAttempts int
	// BaseDelay is the delay after the first failed attempt
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff before jitter
	MaxDelay time.Duration
	// Jitter scales every delay by a uniform factor in [0.5, 1.5]
	Jitter bool
	// Retryable selects the errors that consume a retry; others propagate immediately
	Retryable func(error) bool

	// random and sleep are replaced in tests
	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the policy used for origin fetches and index calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    32 * time.Second,
		Jitter:      true,
		Retryable:   DefaultRetryable,
	}
}

// DefaultRetryable treats transient, rate limit and network timeout errors as retryable.
// Circuit open errors are never retryable.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if domain.IsRetryable(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Delay returns the wait after the failed attempt with the given 0-based index.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := p.MaxDelay
	if attempt < 32 {
		if d := base << uint(attempt); d > 0 && (p.MaxDelay <= 0 || d < p.MaxDelay) {
			delay = d
		}
	}
	if !p.Jitter {
		return delay
	}
	r := rand.Float64
	if p.random != nil {
		r = p.random
	}
	return time.Duration(float64(delay) * (0.5 + r()))
}

// Do runs fn until it succeeds, returns a non-retryable error or attempts run out.
// The last error is returned unchanged together with the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if !retryable(err) {
			return attempt + 1, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return attempt + 1, lastErr
		}
	}
	return maxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
