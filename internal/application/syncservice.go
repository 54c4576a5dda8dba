// Package application contains the use-case services: sync orchestration,
// reconciliation, metrics and scheduling.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
	"github.com/ericfisherdev/devmetrics/internal/telemetry"
)

// Operation labels for sync telemetry and logs.
const (
	opSyncAccount      = "account"
	opSyncRepositories = "repositories"
	opSyncCommits      = "commits"
	opSyncPullRequests = "pull_requests"
)

// SyncService orchestrates account sync runs: repository listing, then
// incremental commit and pull request fetches for every repository of the
// account. Failures of one repository are recorded and the run moves on.
// Only one run per account executes at a time.
type SyncService struct {
	accounts   driven.AccountStore
	uow        driven.UnitOfWork
	clients    *ClientProvider
	reconciler *Reconciler
	notify     notifier
	telemetry  *telemetry.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	status map[int64]*model.SyncStatus
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncNotifier sets the destination of sync events.
func WithSyncNotifier(n driven.Notifier) SyncOption {
	return func(s *SyncService) { s.notify.target = n }
}

// WithSyncTelemetry sets the Prometheus collectors. Nil disables them.
func WithSyncTelemetry(m *telemetry.Metrics) SyncOption {
	return func(s *SyncService) { s.telemetry = m }
}

// WithSyncLogger sets the logger. Defaults to slog.Default.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *SyncService) { s.logger = l }
}

// WithSyncClock replaces time.Now, for tests.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService creates a SyncService.
func NewSyncService(accounts driven.AccountStore, uow driven.UnitOfWork, clients *ClientProvider, opts ...SyncOption) *SyncService {
	s := &SyncService{
		accounts: accounts,
		uow:      uow,
		clients:  clients,
		logger:   slog.Default(),
		now:      time.Now,
		status:   make(map[int64]*model.SyncStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notify.logger = s.logger
	s.notify.now = s.now
	s.reconciler = NewReconciler(uow, s.logger)
	return s
}

// run is the mutable state of one sync entry point invocation.
type run struct {
	accountID int64
	started   time.Time
	logger    *slog.Logger
	res       model.SyncResult
}

// SyncAccount runs a full sync: repositories, then commits and pull requests
// of every active repository of the account.
//
// A repository's watermark advances to the start of the commit phase only when
// both its commit and pull request passes succeeded. Unauthorized and rate
// limit failures stop the remaining repositories, since every request of the
// account would fail the same way.
func (s *SyncService) SyncAccount(ctx context.Context, accountID int64) model.SyncResult {
	r, err := s.begin(ctx, accountID, 0, model.SyncingRepositories)
	if err != nil {
		return s.rejected(accountID, 0, err)
	}
	s.syncAccount(ctx, r)
	return s.finish(ctx, r, opSyncAccount)
}

// repoProgress holds one repository's phase outcomes. Its counts reach the
// run result only once both phases succeeded.
type repoProgress struct {
	repo      model.Repository
	commits   model.ReconcileCounts
	pulls     model.ReconcileCounts
	commitsOK bool
	pullsOK   bool
}

func (s *SyncService) syncAccount(ctx context.Context, r *run) {
	account, client, err := s.clientFor(ctx, r.accountID)
	if err != nil {
		r.res.Fail(err)
		return
	}

	if err := s.syncRepositories(ctx, r, account, client); err != nil {
		r.res.Fail(err)
		return
	}

	repos, err := s.uow.Repositories().ListByAccount(ctx, account.ID)
	if err != nil {
		r.res.Fail(fmt.Errorf("list repositories of account %d: %w", account.ID, err))
		return
	}

	progress := make([]repoProgress, len(repos))
	for i, repo := range repos {
		progress[i].repo = repo
	}

	fetchStart := s.now().UTC()
	stopped := s.eachRepository(ctx, r, progress, model.SyncingCommits, func(p *repoProgress) error {
		counts, err := s.syncCommits(ctx, client, p.repo)
		if err != nil {
			return err
		}
		p.commits = counts
		p.commitsOK = true
		return nil
	})

	if !stopped {
		s.eachRepository(ctx, r, progress, model.SyncingPullRequests, func(p *repoProgress) error {
			counts, err := s.syncPullRequests(ctx, client, p.repo)
			if err != nil {
				return err
			}
			p.pulls = counts
			p.pullsOK = true
			return nil
		})
	}

	for _, p := range progress {
		if !p.commitsOK || !p.pullsOK {
			continue
		}
		if err := s.advanceWatermark(ctx, p.repo, fetchStart); err != nil {
			s.recordFailure(ctx, r, p.repo, model.SyncingPullRequests, err)
			continue
		}
		r.res.Commits.Add(p.commits)
		r.res.PullRequests.Add(p.pulls)
		r.res.RepositoriesSynced++
	}
	r.res.Partial = len(r.res.FailedRepositories) > 0
}

// eachRepository applies step to every repository, folding failures into the
// result. It reports whether the run was stopped early.
func (s *SyncService) eachRepository(ctx context.Context, r *run, progress []repoProgress, phase model.SyncPhase, step func(*repoProgress) error) bool {
	s.setPhase(r.accountID, phase, "")
	for i := range progress {
		if err := ctx.Err(); err != nil {
			r.res.Fail(err)
			return true
		}

		p := &progress[i]
		s.setPhase(r.accountID, phase, p.repo.FullName)
		if err := step(p); err != nil {
			if stop := s.recordFailure(ctx, r, p.repo, phase, err); stop {
				return true
			}
		}
	}
	return false
}

// recordFailure folds a repository failure into the result and reports
// whether the failure ends the run.
func (s *SyncService) recordFailure(ctx context.Context, r *run, repo model.Repository, phase model.SyncPhase, err error) bool {
	f := model.RepositoryFailure{
		RepositoryID: repo.ID,
		FullName:     repo.FullName,
		Phase:        phase,
		ErrorKind:    model.KindOf(err),
		Error:        err.Error(),
	}
	r.res.FailedRepositories = append(r.res.FailedRepositories, f)
	s.telemetry.ObserveRepositoryFailure(f)
	r.logger.Error("repository sync failed",
		"repository", repo.FullName,
		"phase", phase,
		"error_kind", f.ErrorKind,
		"error", err,
	)

	if accountWide(err) || ctx.Err() != nil {
		r.res.Fail(err)
		return true
	}
	return false
}

// accountWide reports whether err affects every request made with the
// account's credential.
func accountWide(err error) bool {
	var rl *model.RateLimitError
	return errors.Is(err, model.ErrUnauthorized) || errors.As(err, &rl)
}

// SyncRepositories fetches and reconciles the account's full repository list.
func (s *SyncService) SyncRepositories(ctx context.Context, accountID int64) model.SyncResult {
	r, err := s.begin(ctx, accountID, 0, model.SyncingRepositories)
	if err != nil {
		return s.rejected(accountID, 0, err)
	}

	account, client, err := s.clientFor(ctx, accountID)
	if err == nil {
		err = s.syncRepositories(ctx, r, account, client)
	}
	if err != nil {
		r.res.Fail(err)
	}
	return s.finish(ctx, r, opSyncRepositories)
}

// SyncCommits incrementally syncs the commits of one repository since its
// watermark, and advances the watermark on success.
func (s *SyncService) SyncCommits(ctx context.Context, repositoryID int64) model.SyncResult {
	return s.syncOne(ctx, repositoryID, model.SyncingCommits, opSyncCommits,
		func(r *run, client driven.PlatformClient, repo model.Repository) error {
			fetchStart := s.now().UTC()
			counts, err := s.syncCommits(ctx, client, repo)
			if err != nil {
				return err
			}
			r.res.Commits = counts
			return s.advanceWatermark(ctx, repo, fetchStart)
		})
}

// SyncPullRequests incrementally syncs the pull requests of one repository
// since its watermark. The watermark is left alone: it also bounds the commit
// fetch, which this entry point does not perform.
func (s *SyncService) SyncPullRequests(ctx context.Context, repositoryID int64) model.SyncResult {
	return s.syncOne(ctx, repositoryID, model.SyncingPullRequests, opSyncPullRequests,
		func(r *run, client driven.PlatformClient, repo model.Repository) error {
			counts, err := s.syncPullRequests(ctx, client, repo)
			if err != nil {
				return err
			}
			r.res.PullRequests = counts
			return nil
		})
}

func (s *SyncService) syncOne(
	ctx context.Context,
	repositoryID int64,
	phase model.SyncPhase,
	op string,
	step func(*run, driven.PlatformClient, model.Repository) error,
) model.SyncResult {
	repo, err := s.uow.Repositories().GetByID(ctx, repositoryID)
	if err != nil {
		return s.rejected(0, repositoryID, err)
	}
	if repo.AccountID == 0 {
		return s.rejected(0, repositoryID, &model.ValidationError{
			Field:  "repository_id",
			Reason: fmt.Sprintf("repository %s is not linked to an account", repo.FullName),
		})
	}

	r, err := s.begin(ctx, repo.AccountID, repositoryID, phase)
	if err != nil {
		return s.rejected(repo.AccountID, repositoryID, err)
	}
	s.setPhase(repo.AccountID, phase, repo.FullName)

	_, client, err := s.clientFor(ctx, repo.AccountID)
	if err == nil {
		err = step(r, client, repo)
	}
	if err != nil {
		r.res.Fail(err)
	} else {
		r.res.RepositoriesSynced = 1
	}
	return s.finish(ctx, r, op)
}

func (s *SyncService) syncRepositories(ctx context.Context, r *run, account model.Account, client driven.PlatformClient) error {
	fetched, err := client.FetchRepositories(ctx)
	if err != nil {
		return fmt.Errorf("fetch repositories for %s: %w", account.Login, err)
	}

	_, counts, err := s.reconciler.Repositories(ctx, account.ID, fetched)
	if err != nil {
		return err
	}
	r.res.Repositories = counts
	s.telemetry.ObserveReconcile("repositories", counts)
	r.logger.Info("repositories reconciled", "fetched", len(fetched), "added", counts.Added, "updated", counts.Updated)
	return nil
}

func (s *SyncService) syncCommits(ctx context.Context, client driven.PlatformClient, repo model.Repository) (model.ReconcileCounts, error) {
	owner, name, err := model.SplitFullName(repo.FullName)
	if err != nil {
		return model.ReconcileCounts{}, err
	}

	fetched, err := client.FetchCommits(ctx, owner, name, repo.LastSyncedAt)
	if err != nil {
		return model.ReconcileCounts{}, fmt.Errorf("fetch commits for %s: %w", repo.FullName, err)
	}

	counts, err := s.reconciler.Commits(ctx, repo.ID, fetched)
	if err != nil {
		return model.ReconcileCounts{}, err
	}
	s.telemetry.ObserveReconcile("commits", counts)
	return counts, nil
}

func (s *SyncService) syncPullRequests(ctx context.Context, client driven.PlatformClient, repo model.Repository) (model.ReconcileCounts, error) {
	owner, name, err := model.SplitFullName(repo.FullName)
	if err != nil {
		return model.ReconcileCounts{}, err
	}

	fetched, err := client.FetchPullRequests(ctx, owner, name, repo.LastSyncedAt)
	if err != nil {
		return model.ReconcileCounts{}, fmt.Errorf("fetch pull requests for %s: %w", repo.FullName, err)
	}

	counts, err := s.reconciler.PullRequests(ctx, repo.ID, fetched)
	if err != nil {
		return model.ReconcileCounts{}, err
	}
	s.telemetry.ObserveReconcile("pull_requests", counts)
	return counts, nil
}

// advanceWatermark moves the repository watermark forward to at. It never
// moves it backwards.
func (s *SyncService) advanceWatermark(ctx context.Context, repo model.Repository, at time.Time) error {
	if repo.LastSyncedAt != nil && !at.After(*repo.LastSyncedAt) {
		return nil
	}
	if err := s.uow.Repositories().AdvanceWatermark(ctx, repo.ID, at); err != nil {
		return fmt.Errorf("advance watermark of %s: %w", repo.FullName, err)
	}
	return nil
}

func (s *SyncService) clientFor(ctx context.Context, accountID int64) (model.Account, driven.PlatformClient, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return model.Account{}, nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	client, err := s.clients.Get(account)
	if err != nil {
		return model.Account{}, nil, err
	}
	return account, client, nil
}

// begin claims the account for a new run.
func (s *SyncService) begin(ctx context.Context, accountID, repositoryID int64, phase model.SyncPhase) (*run, error) {
	now := s.now().UTC()
	runID := uuid.NewString()

	s.mu.Lock()
	st, ok := s.status[accountID]
	if ok && st.Phase != model.SyncIdle {
		s.mu.Unlock()
		return nil, fmt.Errorf("account %d: %w", accountID, model.ErrSyncInProgress)
	}
	if !ok {
		st = &model.SyncStatus{AccountID: accountID}
		s.status[accountID] = st
	}
	st.Phase = phase
	st.RunID = runID
	st.Repository = ""
	st.StartedAt = &now
	s.mu.Unlock()

	r := &run{
		accountID: accountID,
		started:   now,
		logger:    s.logger.With("account_id", accountID, "run_id", runID),
		res: model.SyncResult{
			RunID:        runID,
			AccountID:    accountID,
			RepositoryID: repositoryID,
			Success:      true,
			StartedAt:    now,
		},
	}
	s.notify.send(ctx, model.EventSyncStarted, accountID, map[string]any{"run_id": runID, "repository_id": repositoryID})
	return r, nil
}

func (s *SyncService) setPhase(accountID int64, phase model.SyncPhase, repository string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[accountID]; ok {
		st.Phase = phase
		st.Repository = repository
	}
}

// finish releases the account, records the result and emits the completion event.
func (s *SyncService) finish(ctx context.Context, r *run, op string) model.SyncResult {
	r.res.FinishedAt = s.now().UTC()
	res := r.res

	s.mu.Lock()
	st := s.status[r.accountID]
	st.Phase = model.SyncIdle
	st.RunID = ""
	st.Repository = ""
	st.StartedAt = nil
	last := res
	st.LastResult = &last
	s.mu.Unlock()

	elapsed := res.FinishedAt.Sub(r.started)
	s.telemetry.ObserveSync(op, res, elapsed)

	attrs := []any{
		"operation", op,
		"duration", elapsed.Round(time.Millisecond),
		"repositories_added", res.Repositories.Added,
		"repositories_updated", res.Repositories.Updated,
		"commits_added", res.Commits.Added,
		"commits_updated", res.Commits.Updated,
		"pull_requests_added", res.PullRequests.Added,
		"pull_requests_updated", res.PullRequests.Updated,
		"repositories_synced", res.RepositoriesSynced,
		"repositories_failed", len(res.FailedRepositories),
	}
	if res.Success {
		r.logger.Info("sync finished", attrs...)
	} else {
		r.logger.Warn("sync failed", append(attrs, "error_kind", res.ErrorKind, "error", res.Error)...)
	}

	s.notify.send(ctx, model.EventSyncCompleted, r.accountID, res)
	return res
}

// rejected builds the result of a run that could not start.
func (s *SyncService) rejected(accountID, repositoryID int64, err error) model.SyncResult {
	now := s.now().UTC()
	res := model.SyncResult{AccountID: accountID, RepositoryID: repositoryID, StartedAt: now, FinishedAt: now}
	res.Fail(err)
	s.logger.Warn("sync rejected", "account_id", accountID, "repository_id", repositoryID, "error", err)
	return res
}

// Status returns the current phase and last result of an account.
func (s *SyncService) Status(accountID int64) model.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[accountID]
	if !ok {
		return model.SyncStatus{AccountID: accountID, Phase: model.SyncIdle}
	}
	out := *st
	if st.LastResult != nil {
		last := *st.LastResult
		out.LastResult = &last
	}
	return out
}
