package resilience

import (
	"context"
	"errors"
	"log/slog"
)

// Kind classifies the terminal outcome of a guarded call.
type Kind int

const (
	// KindSuccess means the operation returned without error
	KindSuccess Kind = iota
	// KindRetryable means every attempt failed with a retryable error
	KindRetryable
	// KindFatal means the operation failed with a non-retryable error
	KindFatal
	// KindCircuitOpen means the call was rejected without an attempt
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Outcome is the explicit result of a guarded call.
type Outcome[T any] struct {
	Value    T
	Kind     Kind
	Err      error
	Attempts int
}

// OK reports whether the call succeeded.
func (o Outcome[T]) OK() bool {
	return o.Kind == KindSuccess
}

// Executor composes a retry policy with a circuit breaker.
// All origin and index access in a sync run goes through one.
type Executor struct {
	policy  RetryPolicy
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// NewExecutor creates an executor. A nil breaker gets a default one.
func NewExecutor(policy RetryPolicy, breaker *CircuitBreaker, logger *slog.Logger) *Executor {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{policy: policy, breaker: breaker, logger: logger}
}

// Breaker returns the circuit breaker owned by the executor.
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// Policy returns the retry policy of the executor.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Run checks the circuit for key, then drives op through the retry loop.
// The breaker only sees the terminal outcome, never individual attempts.
func Run[T any](ctx context.Context, e *Executor, key string, op func(ctx context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]

	if err := e.breaker.Allow(key); err != nil {
		e.logger.Warn("circuit open, skipping call", "circuit_key", key)
		out.Kind = KindCircuitOpen
		out.Err = err
		return out
	}

	retryable := e.policy.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	policy := e.policy
	policy.Retryable = func(err error) bool {
		if !retryable(err) {
			return false
		}
		e.logger.Debug("retrying call", "circuit_key", key, "error", err)
		return true
	}

	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out.Value = v
		}
		return err
	})
	out.Attempts = attempts
	out.Err = err

	switch {
	case err == nil:
		out.Kind = KindSuccess
		e.breaker.RecordSuccess(key)
	case errors.Is(err, context.Canceled):
		out.Kind = KindFatal
		e.breaker.abandon(key)
	case retryable(err):
		out.Kind = KindRetryable
		e.breaker.RecordFailure(key)
	default:
		out.Kind = KindFatal
		e.breaker.RecordFailure(key)
	}
	return out
}

// Execute is Run for callers that only need the value and error.
func Execute[T any](ctx context.Context, e *Executor, key string, op func(ctx context.Context) (T, error)) (T, error) {
	out := Run(ctx, e, key, op)
	return out.Value, out.Err
}
