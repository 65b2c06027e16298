package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the wrapped function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	State        State
	FailureCount int
	OpenedAt     time.Time // zero unless open or half-open
}

// Breaker is a circuit breaker. It is safe for concurrent use; in the
// half-open state exactly one trial call is admitted.
type Breaker struct {
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time
	notify func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	trialActive  bool
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a hook called (outside the lock) on every
// transition.
func WithStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.notify = fn
	}
}

func NewBreaker(cfg BreakerConfig, logger *zap.Logger, opts ...BreakerOption) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	b := &Breaker{
		cfg:    cfg,
		logger: telemetry.OrNop(logger).Named("breaker").With(zap.String("breaker", cfg.Name)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// Snapshot returns the current state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, FailureCount: b.failureCount, OpenedAt: b.openedAt}
}

// State returns the current state.
func (b *Breaker) State() State {
	return b.Snapshot().State
}

// Execute calls fn through the breaker.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	trial, err := b.admit()
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(trial, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// Call runs fn through the breaker inside the retrier's backoff loop.
// Either argument may be nil.
func Call[T any](ctx context.Context, r *Retrier, b *Breaker, op string, fn func(context.Context) (T, error)) (T, error) {
	return Do(ctx, r, op, func(ctx context.Context) (T, error) {
		return Execute(ctx, b, fn)
	})
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.mu.Unlock()
			return false, fmt.Errorf("%s: %w", b.cfg.Name, ErrCircuitOpen)
		}
		b.trialActive = true
		change := b.transitionLocked(StateHalfOpen)
		b.mu.Unlock()
		change()
		return true, nil
	default: // half-open
		if b.trialActive {
			b.mu.Unlock()
			return false, fmt.Errorf("%s: %w", b.cfg.Name, ErrCircuitOpen)
		}
		b.trialActive = true
		b.mu.Unlock()
		return true, nil
	}
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()
	if trial {
		b.trialActive = false
	}

	change := func() {}
	switch {
	case err == nil:
		if b.state == StateClosed || trial {
			b.failureCount = 0
		}
		if trial {
			b.openedAt = time.Time{}
			change = b.transitionLocked(StateClosed)
		}
	case errors.Is(err, context.Canceled):
		// caller gave up; not a dependency failure
	default:
		b.failureCount++
		switch {
		case trial:
			b.openedAt = b.now()
			change = b.transitionLocked(StateOpen)
		case b.state == StateClosed && b.failureCount >= b.cfg.FailureThreshold:
			b.openedAt = b.now()
			change = b.transitionLocked(StateOpen)
		}
	}
	b.mu.Unlock()
	change()
}

// transitionLocked sets the new state and returns the notification to run
// once b.mu is released.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	b.state = to
	failures := b.failureCount
	return func() {
		b.logger.Info("circuit state change",
			telemetry.EventField(telemetry.EventBreakerTransition),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Int("failure_count", failures),
		)
		if b.notify != nil {
			b.notify(b.cfg.Name, from, to)
		}
	}
}
