// Package resilience wraps outbound calls (model listing, tool-server
// connects, backend turns) with retry-with-backoff and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

// Policy configures retry-with-backoff. Attempts counts total tries,
// including the first.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Delay returns the pause after the zero-based attempt that just failed:
// min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 || p.BaseDelay <= 0 {
		return 0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = p.BaseDelay
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs operations under a Policy.
type Retrier struct {
	policy    Policy
	logger    *zap.Logger
	sleep     SleepFunc
	retryable func(error) bool
}

// RetryOption customizes a Retrier.
type RetryOption func(*Retrier)

// WithSleep replaces the context-aware timer sleep.
func WithSleep(sleep SleepFunc) RetryOption {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithRetryIf limits retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) RetryOption {
	return func(r *Retrier) {
		if fn != nil {
			r.retryable = fn
		}
	}
}

func NewRetrier(policy Policy, logger *zap.Logger, opts ...RetryOption) *Retrier {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	r := &Retrier{
		policy:    policy,
		logger:    telemetry.OrNop(logger).Named("retry"),
		sleep:     sleepContext,
		retryable: DefaultRetryable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts run out. The last error is returned.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) || !r.retryable(err) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == r.policy.Attempts-1 {
			break
		}

		delay := r.policy.Delay(attempt)
		r.logger.Warn("attempt failed, retrying",
			telemetry.EventField(telemetry.EventRetryAttempt),
			zap.String("op", op),
			telemetry.AttemptField(attempt+1),
			zap.Int("max_attempts", r.policy.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: retry interrupted: %w", op, errors.Join(lastErr, err))
		}
	}

	r.logger.Error("all attempts failed",
		telemetry.EventField(telemetry.EventRetryExhausted),
		zap.String("op", op),
		zap.Int("attempts", r.policy.Attempts),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// PermanentError marks a failure that no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// DefaultRetryable is the retry predicate used when no WithRetryIf option
// is given. Open circuits and cancelled contexts are final.
func DefaultRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
