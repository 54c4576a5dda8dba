// Package resilience wraps external calls with bounded retry, jittered
// exponential backoff and translation of rate-limit failures.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 3

const (
	jitterMin  = 100 * time.Millisecond
	jitterSpan = 400 * time.Millisecond
)

// Observer receives retry and rate-limit events, typically for metrics.
type Observer interface {
	ObserveRetry(op string)
	ObserveRateLimit(op string)
}

// Policy executes operations with retry. It is safe for concurrent use.
type Policy struct {
	maxRetries int
	delay      func(attempt int) time.Duration
	now        func() time.Time
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxRetries sets how many times a failed attempt is retried.
func WithMaxRetries(n int) Option {
	return func(p *Policy) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithDelay replaces the backoff schedule. attempt starts at 1 for the first retry.
func WithDelay(delay func(attempt int) time.Duration) Option {
	return func(p *Policy) { p.delay = delay }
}

// WithClock replaces the clock used to compute rate-limit waits.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithLogger sets the logger used for retry and exhaustion messages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// WithObserver registers an observer for retry and rate-limit events.
func WithObserver(o Observer) Option {
	return func(p *Policy) { p.observer = o }
}

// New creates a Policy. Without options it retries three times, waiting
// 2^n seconds plus 100-500ms of jitter before retry n.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxRetries: DefaultMaxRetries,
		delay:      ExponentialJitter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExponentialJitter returns 2^attempt seconds plus a random jitter in [100ms, 500ms).
func ExponentialJitter(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	return base + jitterMin + rand.N(jitterSpan)
}

// Execute runs fn until it succeeds, fails permanently, or retries are exhausted.
//
// Not-found, unauthorized and validation failures are returned unchanged without retry.
// A *model.RateLimitError is not retried either; it is returned as a
// *model.ServiceUnavailableError whose RetryAfter is the time until reset.
// When retries are exhausted the last failure is wrapped in a
// *model.ServiceUnavailableError. Cancellation of ctx is checked before every attempt.
func (p *Policy) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Warn("retrying operation",
			"operation", op,
			"attempt", attempt,
			"delay", wait,
			"error", err,
		)
		if p.observer != nil {
			p.observer.ObserveRetry(op)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&scheduleBackOff{delay: p.delay}, uint64(p.maxRetries)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	return p.translate(ctx, op, attempt, err)
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Policy) translate(ctx context.Context, op string, attempts int, err error) error {
	var rl *model.RateLimitError
	if errors.As(err, &rl) {
		wait := max(rl.Reset.Sub(p.now()), 0)
		p.logger.Warn("rate limit exceeded",
			"operation", op,
			"reset", rl.Reset,
			"retry_after", wait,
		)
		if p.observer != nil {
			p.observer.ObserveRateLimit(op)
		}
		return &model.ServiceUnavailableError{Op: op, RetryAfter: wait, Err: err}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return err
		}
		return fmt.Errorf("%s interrupted: %w (last error: %v)", op, ctxErr, err)
	}
	if !retryable(err) {
		return err
	}

	p.logger.Error("operation failed after retries",
		"operation", op,
		"attempts", attempts,
		"error", err,
	)
	var su *model.ServiceUnavailableError
	if errors.As(err, &su) {
		return err
	}
	return &model.ServiceUnavailableError{Op: op, Err: err}
}

// retryable reports whether err is worth another attempt. A cancellation error
// is retryable here because Execute has already checked that ctx itself is live.
func retryable(err error) bool {
	var rl *model.RateLimitError
	switch {
	case errors.As(err, &rl):
		return false
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrValidation):
		return false
	default:
		return true
	}
}

// scheduleBackOff adapts a delay schedule to backoff.BackOff.
type scheduleBackOff struct {
	attempt int
	delay   func(attempt int) time.Duration
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

func (b *scheduleBackOff) Reset() { b.attempt = 0 }
