package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

type countingObserver struct {
	retries    int
	rateLimits int
}

func (o *countingObserver) ObserveRetry(string)     { o.retries++ }
func (o *countingObserver) ObserveRateLimit(string) { o.rateLimits++ }

func newTestPolicy(now time.Time, obs Observer) *Policy {
	return New(
		WithDelay(func(int) time.Duration { return 0 }),
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(obs),
	)
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	obs := &countingObserver{}
	p := newTestPolicy(time.Now(), obs)

	calls := 0
	err := p.Execute(context.Background(), "list commits", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, obs.retries)
}

func TestExecute_ExhaustionSurfacesServiceUnavailable(t *testing.T) {
	obs := &countingObserver{}
	p := newTestPolicy(time.Now(), obs)

	cause := errors.New("502 bad gateway")
	calls := 0
	err := p.Execute(context.Background(), "list commits", func(context.Context) error {
		calls++
		return cause
	})

	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Equal(t, DefaultMaxRetries, obs.retries)
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)

	var su *model.ServiceUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "list commits", su.Op)
	assert.Zero(t, su.RetryAfter)
}

func TestExecute_DeterministicFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", fmt.Errorf("repo: %w", model.ErrNotFound)},
		{"unauthorized", model.ErrUnauthorized},
		{"validation", &model.ValidationError{Field: "owner", Reason: "required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &countingObserver{}
			p := newTestPolicy(time.Now(), obs)

			calls := 0
			err := p.Execute(context.Background(), "op", func(context.Context) error {
				calls++
				return tt.err
			})

			assert.Equal(t, 1, calls)
			assert.Zero(t, obs.retries)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestExecute_RateLimitTranslatesToRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		reset     time.Time
		wantAfter time.Duration
	}{
		{"reset in the future", now.Add(90 * time.Second), 90 * time.Second},
		{"reset already passed", now.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &countingObserver{}
			p := newTestPolicy(now, obs)

			calls := 0
			err := p.Execute(context.Background(), "list repositories", func(context.Context) error {
				calls++
				return &model.RateLimitError{Reset: tt.reset}
			})

			assert.Equal(t, 1, calls, "rate limits are not retried inline")
			assert.Equal(t, 1, obs.rateLimits)
			assert.Equal(t, model.KindServiceUnavailable, model.KindOf(err))

			var su *model.ServiceUnavailableError
			require.ErrorAs(t, err, &su)
			assert.Equal(t, tt.wantAfter, su.RetryAfter)
		})
	}
}

func TestExecute_HonorsCancellationBeforeAttempt(t *testing.T) {
	p := newTestPolicy(time.Now(), &countingObserver{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Execute(ctx, "op", func(context.Context) error {
		calls++
		return nil
	})

	assert.Zero(t, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_CancellationDuringRetriesStops(t *testing.T) {
	p := newTestPolicy(time.Now(), &countingObserver{})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Execute(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, model.KindCanceled, model.KindOf(err))
}

func TestDo_ReturnsValue(t *testing.T) {
	p := newTestPolicy(time.Now(), &countingObserver{})

	calls := 0
	got, err := Do(context.Background(), p, "count", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestExponentialJitter(t *testing.T) {
	for attempt := 1; attempt <= 3; attempt++ {
		base := time.Duration(1<<uint(attempt)) * time.Second
		for range 20 {
			d := ExponentialJitter(attempt)
			assert.GreaterOrEqual(t, d, base+100*time.Millisecond)
			assert.Less(t, d, base+500*time.Millisecond)
		}
	}
}
