package application_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/application"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

type recordingSyncer struct {
	mu      sync.Mutex
	synced  []int64
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (s *recordingSyncer) SyncAccount(_ context.Context, accountID int64) model.SyncResult {
	n := s.active.Add(1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.release != nil {
		<-s.release
	}
	s.active.Add(-1)

	s.mu.Lock()
	s.synced = append(s.synced, accountID)
	s.mu.Unlock()
	return model.SyncResult{AccountID: accountID, Success: accountID%2 == 1}
}

type countingCalculator struct {
	calls atomic.Int32
}

func (c *countingCalculator) CalculateForAll(context.Context) model.MetricsRunResult {
	c.calls.Add(1)
	return model.MetricsRunResult{Success: true, Succeeded: 1}
}

func seedAccounts(t *testing.T, h *harness, logins ...string) []int64 {
	t.Helper()
	ids := []int64{h.account.ID}
	for _, login := range logins {
		acct, err := h.accounts.Save(context.Background(), login, "token-"+login)
		require.NoError(t, err)
		ids = append(ids, acct.ID)
	}
	return ids
}

func TestScheduler_RunCycleSyncsEveryAccountThenMetrics(t *testing.T) {
	h := newHarness(t)
	ids := seedAccounts(t, h, "ann", "ben", "cat")
	syncer := &recordingSyncer{}
	calc := &countingCalculator{}
	sched := application.NewScheduler(h.accounts, syncer, calc, 0, 2, discardLogger())

	res, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, ids, syncer.synced)
	assert.Len(t, res.Syncs, len(ids))
	assert.Equal(t, int32(1), calc.calls.Load())
	assert.True(t, res.Metrics.Success)
	assert.LessOrEqual(t, syncer.peak.Load(), int32(2))
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	h := newHarness(t)
	seedAccounts(t, h, "ann", "ben", "cat", "dan")
	syncer := &recordingSyncer{release: make(chan struct{})}
	sched := application.NewScheduler(h.accounts, syncer, &countingCalculator{}, 0, 2, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sched.RunCycle(context.Background())
	}()

	require.Eventually(t, func() bool { return syncer.active.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(syncer.release)
	<-done

	assert.Equal(t, int32(2), syncer.peak.Load())
	assert.Len(t, syncer.synced, 5)
}

func TestScheduler_Trigger(t *testing.T) {
	h := newHarness(t)
	syncer := &recordingSyncer{}
	calc := &countingCalculator{}
	sched := application.NewScheduler(h.accounts, syncer, calc, 0, 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sched.Start(ctx)
	}()

	res, err := sched.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{h.account.ID}, syncer.synced)
	assert.Len(t, res.Syncs, 1)
	assert.Equal(t, int32(1), calc.calls.Load())

	cancel()
	<-stopped
}

func TestScheduler_TriggerHonorsContext(t *testing.T) {
	h := newHarness(t)
	sched := application.NewScheduler(h.accounts, &recordingSyncer{}, &countingCalculator{}, 0, 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nothing is serving the trigger channel.
	_, err := sched.Trigger(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
