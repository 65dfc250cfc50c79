package resilience

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// ErrCircuitOpen is returned when the circuit for a key is open.
// It is never retryable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError carries the key and the instant a trial call becomes possible.
type CircuitOpenError struct {
	Key       string
	OpenUntil time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.OpenUntil.IsZero() {
		return fmt.Sprintf("circuit breaker is open for %s: trial call in flight", e.Key)
	}
	return fmt.Sprintf("circuit breaker is open for %s until %s", e.Key, e.OpenUntil.Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrCircuitOpen.
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// State represents the state of one circuit
type State int

const (
	// StateClosed allows calls
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses
	StateOpen
	// StateHalfOpen allows a single trial call
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive terminal failures that opens a circuit
	FailureThreshold int
	// ResetTimeout is how long a circuit stays open before a trial call is allowed
	ResetTimeout time.Duration
	// OnStateChange is an optional callback invoked outside the lock
	OnStateChange func(key string, from, to State)
	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// DefaultBreakerConfig returns the default breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

type circuit struct {
	failures  int
	openUntil time.Time
	probing   bool
}

func (c *circuit) state(now time.Time, threshold int) State {
	switch {
	case c.failures < threshold:
		return StateClosed
	case c.probing:
		return StateHalfOpen
	case !c.openUntil.IsZero() && now.Before(c.openUntil):
		return StateOpen
	default:
		return StateHalfOpen
	}
}

// CircuitBreaker keeps an independent circuit per resource key.
// Circuits live in memory only and are owned by the instance.
type CircuitBreaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   BreakerConfig
}

// NewCircuitBreaker creates a circuit breaker with the given configuration
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   config,
	}
}

// IsOpen reports whether calls for key must fail fast right now.
// It does not consume the half-open trial call.
func (b *CircuitBreaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return false
	}
	now := b.config.Now()
	if c.failures < b.config.FailureThreshold {
		return false
	}
	return c.probing || now.Before(c.openUntil)
}

// Allow admits a call for key or returns a *CircuitOpenError.
// Once the cooldown has passed the circuit turns half-open and admits exactly one trial call.
func (b *CircuitBreaker) Allow(key string) error {
	b.mu.Lock()
	c, ok := b.circuits[key]
	if !ok || c.failures < b.config.FailureThreshold {
		b.mu.Unlock()
		return nil
	}
	now := b.config.Now()
	if c.probing {
		b.mu.Unlock()
		return &CircuitOpenError{Key: key}
	}
	if now.Before(c.openUntil) {
		until := c.openUntil
		b.mu.Unlock()
		return &CircuitOpenError{Key: key, OpenUntil: until}
	}
	c.openUntil = time.Time{}
	c.probing = true
	b.mu.Unlock()

	b.notify(key, StateOpen, StateHalfOpen)
	return nil
}

// RecordSuccess closes the circuit for key and resets its failure count.
func (b *CircuitBreaker) RecordSuccess(key string) {
	b.mu.Lock()
	c, ok := b.circuits[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	from := c.state(b.config.Now(), b.config.FailureThreshold)
	delete(b.circuits, key)
	b.mu.Unlock()

	b.notify(key, from, StateClosed)
}

// RecordFailure counts a terminal failure for key.
// Reaching the threshold, or failing the half-open trial call, opens the circuit with a fresh cooldown.
func (b *CircuitBreaker) RecordFailure(key string) {
	b.mu.Lock()
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	now := b.config.Now()
	from := c.state(now, b.config.FailureThreshold)
	c.failures++
	c.probing = false
	if c.failures >= b.config.FailureThreshold {
		c.openUntil = now.Add(b.config.ResetTimeout)
	}
	to := c.state(now, b.config.FailureThreshold)
	b.mu.Unlock()

	b.notify(key, from, to)
}

// abandon releases the half-open trial slot when its call never finished.
func (b *CircuitBreaker) abandon(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		c.probing = false
	}
}

// Failures returns the current consecutive failure count for key.
func (b *CircuitBreaker) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c.failures
	}
	return 0
}

// Snapshot exports every known circuit, ordered by key.
func (b *CircuitBreaker) Snapshot() []domain.CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Now()
	out := make([]domain.CircuitSnapshot, 0, len(b.circuits))
	for key, c := range b.circuits {
		snap := domain.CircuitSnapshot{
			Key:      key,
			State:    c.state(now, b.config.FailureThreshold).String(),
			Failures: c.failures,
		}
		if !c.openUntil.IsZero() {
			until := c.openUntil
			snap.OpenUntil = &until
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (b *CircuitBreaker) notify(key string, from, to State) {
	if from == to || b.config.OnStateChange == nil {
		return
	}
	b.config.OnStateChange(key, from, to)
}
