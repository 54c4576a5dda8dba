package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// AccountSyncer runs a full sync for one account.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID int64) model.SyncResult
}

// MetricsCalculator recomputes metrics for every developer.
type MetricsCalculator interface {
	CalculateForAll(ctx context.Context) model.MetricsRunResult
}

// CycleResult is the outcome of one scheduler cycle.
type CycleResult struct {
	Syncs   []model.SyncResult     `json:"syncs"`
	Metrics model.MetricsRunResult `json:"metrics"`
}

type triggerRequest struct {
	done chan cycleOutcome
}

type cycleOutcome struct {
	res CycleResult
	err error
}

// Scheduler runs a full sync of every account on an interval, followed by a
// metrics recomputation. Accounts sync concurrently up to a limit.
type Scheduler struct {
	accounts    driven.AccountStore
	syncer      AccountSyncer
	calculator  MetricsCalculator
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
	triggerCh   chan triggerRequest
}

// NewScheduler creates a Scheduler. A non-positive interval disables the
// ticker; cycles then run only through Trigger.
func NewScheduler(
	accounts driven.AccountStore,
	syncer AccountSyncer,
	calculator MetricsCalculator,
	interval time.Duration,
	concurrency int,
	logger *slog.Logger,
) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		accounts:    accounts,
		syncer:      syncer,
		calculator:  calculator,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
		triggerCh:   make(chan triggerRequest),
	}
}

// Start runs an immediate cycle when the ticker is enabled, then a cycle per
// tick, and serves manual triggers. It blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("initial sync cycle failed", "error", err)
		}
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-tick:
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.Error("sync cycle failed", "error", err)
			}
		case req := <-s.triggerCh:
			res, err := s.RunCycle(ctx)
			req.done <- cycleOutcome{res: res, err: err}
		}
	}
}

// Trigger asks the running loop for a cycle outside the interval and blocks
// until it completes or ctx is canceled.
func (s *Scheduler) Trigger(ctx context.Context) (CycleResult, error) {
	req := triggerRequest{done: make(chan cycleOutcome, 1)}

	select {
	case s.triggerCh <- req:
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}

	select {
	case out := <-req.done:
		return out.res, out.err
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

// RunCycle syncs every account and then recomputes metrics. Per-account
// failures are reported in the results, not as an error.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("list accounts: %w", err)
	}

	results := make([]model.SyncResult, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, account := range accounts {
		g.Go(func() error {
			results[i] = s.syncer.SyncAccount(gctx, account.ID)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return CycleResult{Syncs: results}, err
	}

	var failed, partial int
	for _, r := range results {
		switch {
		case !r.Success:
			failed++
		case r.Partial:
			partial++
		}
	}

	out := CycleResult{Syncs: results, Metrics: s.calculator.CalculateForAll(ctx)}
	s.logger.Info("sync cycle complete",
		"accounts", len(accounts),
		"failed", failed,
		"partial", partial,
		"metrics_failed", out.Metrics.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}
