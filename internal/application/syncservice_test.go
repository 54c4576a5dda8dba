package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// seedPlatform loads two repositories with three authors into the fake client.
func seedPlatform(c *fakeClient) {
	c.repos = []model.FetchedRepository{
		fetchedRepo("101", "acme/api"),
		fetchedRepo("102", "acme/web"),
	}
	c.commits["acme/api"] = []model.FetchedCommit{
		fetchedCommit("a1", "a@x.com", "alice", "2024-03-04T10:00:00Z", 100, 20),
		fetchedCommit("a2", "A@X.com", "alice", "2024-03-05T10:00:00Z", 5, 5),
		fetchedCommit("a3", "b@x.com", "", "2024-03-06T10:00:00Z", 1, 1),
	}
	c.commits["acme/web"] = []model.FetchedCommit{
		fetchedCommit("w1", "a@x.com", "alice", "2024-03-07T10:00:00Z", 10, 0),
	}
	c.pulls["acme/api"] = []model.FetchedPullRequest{
		fetchedPull(1, "alice", "2024-03-04T09:00:00Z", ptr(ts("2024-03-05T09:00:00Z"))),
	}
	c.pulls["acme/web"] = []model.FetchedPullRequest{
		fetchedPull(7, "carol", "2024-03-08T09:00:00Z", nil),
	}
}

func TestSyncAccount_FullRun(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()

	res := h.sync.SyncAccount(ctx, h.account.ID)

	require.True(t, res.Success, res.Error)
	assert.False(t, res.Partial)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, model.ReconcileCounts{Added: 2}, res.Repositories)
	assert.Equal(t, model.ReconcileCounts{Added: 4}, res.Commits)
	assert.Equal(t, model.ReconcileCounts{Added: 2}, res.PullRequests)
	assert.Equal(t, 2, res.RepositoriesSynced)
	assert.Empty(t, res.FailedRepositories)

	// alice (commits and PR), b@x.com and carol.
	devs, err := h.store.Developers().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, devs)

	for _, name := range []string{"acme/api", "acme/web"} {
		repo := h.repo(t, name)
		assert.Equal(t, h.account.ID, repo.AccountID)
		require.NotNil(t, repo.LastSyncedAt, name)
		assert.True(t, repo.LastSyncedAt.Equal(h.clock.Now()), name)
	}

	assert.Nil(t, h.client.since("commits:acme/api", 0))
	assert.Nil(t, h.client.since("pulls:acme/api", 0))
	assert.Equal(t, []model.EventType{model.EventSyncStarted, model.EventSyncCompleted}, h.notifier.types())

	status := h.sync.Status(h.account.ID)
	assert.Equal(t, model.SyncIdle, status.Phase)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, res.RunID, status.LastResult.RunID)
}

func TestSyncAccount_PullRequestAuthorJoinsCommitAuthor(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()

	require.True(t, h.sync.SyncAccount(ctx, h.account.ID).Success)

	alice, err := h.store.Developers().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, alice)

	api := h.repo(t, "acme/api")
	pr, err := h.store.PullRequests().GetByNumber(ctx, api.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.Equal(t, alice.ID, pr.AuthorID)
	assert.Equal(t, model.PRStatusMerged, pr.Status)
}

func TestSyncAccount_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()

	first := h.sync.SyncAccount(ctx, h.account.ID)
	require.True(t, first.Success)
	firstSync := h.clock.Now()

	h.clock.Advance(time.Hour)
	second := h.sync.SyncAccount(ctx, h.account.ID)
	require.True(t, second.Success, second.Error)

	assert.Equal(t, model.ReconcileCounts{Updated: 2}, second.Repositories)
	assert.Equal(t, model.ReconcileCounts{Updated: 4}, second.Commits)
	assert.Equal(t, model.ReconcileCounts{Updated: 2}, second.PullRequests)

	commits, err := h.store.Commits().Count(ctx, driven.CommitQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, commits)

	since := h.client.since("commits:acme/api", 1)
	require.NotNil(t, since)
	assert.True(t, since.Equal(firstSync))
	prSince := h.client.since("pulls:acme/api", 1)
	require.NotNil(t, prSince)
	assert.True(t, prSince.Equal(firstSync))

	repo := h.repo(t, "acme/api")
	require.NotNil(t, repo.LastSyncedAt)
	assert.True(t, repo.LastSyncedAt.After(firstSync))
}

func TestSyncAccount_RepositoryFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	h.client.errs["commits:acme/api"] = errors.New("connection reset by peer")

	res := h.sync.SyncAccount(context.Background(), h.account.ID)

	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Equal(t, 1, res.RepositoriesSynced)
	require.Len(t, res.FailedRepositories, 1)
	failure := res.FailedRepositories[0]
	assert.Equal(t, "acme/api", failure.FullName)
	assert.Equal(t, model.SyncingCommits, failure.Phase)
	assert.Equal(t, model.KindUnexpected, failure.ErrorKind)

	assert.Nil(t, h.repo(t, "acme/api").LastSyncedAt)
	assert.NotNil(t, h.repo(t, "acme/web").LastSyncedAt)
	assert.Equal(t, 1, res.Commits.Added)
}

func TestSyncAccount_PullRequestFailureKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	h.client.errs["pulls:acme/web"] = &model.ServiceUnavailableError{Op: "list pull requests", Err: errors.New("502 bad gateway")}

	res := h.sync.SyncAccount(context.Background(), h.account.ID)

	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	require.Len(t, res.FailedRepositories, 1)
	assert.Equal(t, model.SyncingPullRequests, res.FailedRepositories[0].Phase)
	assert.Equal(t, model.KindServiceUnavailable, res.FailedRepositories[0].ErrorKind)
	assert.Nil(t, h.repo(t, "acme/web").LastSyncedAt)
	assert.NotNil(t, h.repo(t, "acme/api").LastSyncedAt)

	// Only acme/api completed both phases, so the acme/web commit is not tallied.
	assert.Equal(t, 1, res.RepositoriesSynced)
	assert.Equal(t, model.ReconcileCounts{Added: 3}, res.Commits)
	assert.Equal(t, model.ReconcileCounts{Added: 1}, res.PullRequests)
}

func TestSyncAccount_AccountWideFailureStopsRun(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      model.ErrorKind
		retryHint time.Duration
	}{
		{
			name: "rate limit",
			err: &model.ServiceUnavailableError{
				Op:         "list commits",
				RetryAfter: 90 * time.Second,
				Err:        &model.RateLimitError{Reset: ts("2024-03-20T12:01:30Z")},
			},
			kind:      model.KindServiceUnavailable,
			retryHint: 90 * time.Second,
		},
		{
			name: "unauthorized",
			err:  fmt.Errorf("list commits: %w", model.ErrUnauthorized),
			kind: model.KindUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			seedPlatform(h.client)
			h.client.errs["commits:acme/api"] = tt.err

			res := h.sync.SyncAccount(context.Background(), h.account.ID)

			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Equal(t, tt.retryHint, res.RetryAfter)
			require.Len(t, res.FailedRepositories, 1)
			assert.ElementsMatch(t, []string{"commits:acme/api"}, h.client.fetchedKeys())
			assert.Nil(t, h.repo(t, "acme/api").LastSyncedAt)
			assert.Nil(t, h.repo(t, "acme/web").LastSyncedAt)
		})
	}
}

func TestSyncAccount_RepositoryListingFailure(t *testing.T) {
	h := newHarness(t)
	h.client.reposErr = fmt.Errorf("list repositories: %w", model.ErrUnauthorized)

	res := h.sync.SyncAccount(context.Background(), h.account.ID)

	assert.False(t, res.Success)
	assert.Equal(t, model.KindUnauthorized, res.ErrorKind)
	assert.Contains(t, res.Error, "octo")
	assert.Empty(t, h.client.fetchedKeys())
	assert.Equal(t, model.SyncIdle, h.sync.Status(h.account.ID).Phase)
}

func TestSyncAccount_CanceledMidRun(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.client.onFetch = func(key string) {
		if key == "commits:acme/api" {
			cancel()
		}
	}
	h.client.errs["commits:acme/api"] = context.Canceled

	res := h.sync.SyncAccount(ctx, h.account.ID)

	assert.False(t, res.Success)
	assert.Equal(t, model.KindCanceled, res.ErrorKind)
	assert.ElementsMatch(t, []string{"commits:acme/api"}, h.client.fetchedKeys())
	assert.Equal(t, []model.EventType{model.EventSyncStarted, model.EventSyncCompleted}, h.notifier.types())
}

func TestSyncAccount_UnknownAccount(t *testing.T) {
	h := newHarness(t)

	res := h.sync.SyncAccount(context.Background(), 9999)

	assert.False(t, res.Success)
	assert.Equal(t, model.KindNotFound, res.ErrorKind)
	assert.Equal(t, model.SyncIdle, h.sync.Status(9999).Phase)
}

func TestSyncAccount_RejectsConcurrentRunForSameAccount(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	h.client.gate = make(chan struct{})
	h.client.entered = make(chan struct{}, 1)
	ctx := context.Background()

	done := make(chan model.SyncResult, 1)
	go func() { done <- h.sync.SyncAccount(ctx, h.account.ID) }()
	<-h.client.entered

	status := h.sync.Status(h.account.ID)
	assert.Equal(t, model.SyncingRepositories, status.Phase)
	assert.NotEmpty(t, status.RunID)

	rejected := h.sync.SyncAccount(ctx, h.account.ID)
	assert.False(t, rejected.Success)
	assert.Equal(t, model.KindConflict, rejected.ErrorKind)

	close(h.client.gate)
	first := <-done
	require.True(t, first.Success, first.Error)

	status = h.sync.Status(h.account.ID)
	assert.Equal(t, model.SyncIdle, status.Phase)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, first.RunID, status.LastResult.RunID)
}

func TestSyncAccount_NotificationFailureDoesNotFailSync(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	h.notifier.err = errors.New("socket closed")

	res := h.sync.SyncAccount(context.Background(), h.account.ID)

	assert.True(t, res.Success)
	assert.Len(t, h.notifier.types(), 2)
}

func TestSyncRepositories(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	h.client.repos = append(h.client.repos, model.FetchedRepository{FullName: "acme/ghost"})

	res := h.sync.SyncRepositories(context.Background(), h.account.ID)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, model.ReconcileCounts{Added: 2, Skipped: 1}, res.Repositories)
	assert.ElementsMatch(t, []string{}, h.client.fetchedKeys())
	assert.Nil(t, h.repo(t, "acme/api").LastSyncedAt)
}

func TestSyncCommits_WatermarkIncreasesOnSuccess(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()
	require.True(t, h.sync.SyncRepositories(ctx, h.account.ID).Success)
	api := h.repo(t, "acme/api")

	res := h.sync.SyncCommits(ctx, api.ID)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, model.ReconcileCounts{Added: 3}, res.Commits)
	assert.Equal(t, api.ID, res.RepositoryID)
	first := h.repo(t, "acme/api").LastSyncedAt
	require.NotNil(t, first)

	h.clock.Advance(time.Minute)
	res = h.sync.SyncCommits(ctx, api.ID)
	require.True(t, res.Success, res.Error)
	second := h.repo(t, "acme/api").LastSyncedAt
	require.NotNil(t, second)
	assert.True(t, second.After(*first))

	since := h.client.since("commits:acme/api", 1)
	require.NotNil(t, since)
	assert.True(t, since.Equal(*first))
}

func TestSyncCommits_FailureKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()
	require.True(t, h.sync.SyncRepositories(ctx, h.account.ID).Success)
	api := h.repo(t, "acme/api")
	require.True(t, h.sync.SyncCommits(ctx, api.ID).Success)
	before := h.repo(t, "acme/api").LastSyncedAt

	h.clock.Advance(time.Minute)
	h.client.errs["commits:acme/api"] = &model.ServiceUnavailableError{Op: "list commits", RetryAfter: 30 * time.Second}
	res := h.sync.SyncCommits(ctx, api.ID)

	assert.False(t, res.Success)
	assert.Equal(t, model.KindServiceUnavailable, res.ErrorKind)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	after := h.repo(t, "acme/api").LastSyncedAt
	require.NotNil(t, after)
	assert.True(t, after.Equal(*before))
}

func TestSyncPullRequests_LeavesWatermark(t *testing.T) {
	h := newHarness(t)
	seedPlatform(h.client)
	ctx := context.Background()
	require.True(t, h.sync.SyncRepositories(ctx, h.account.ID).Success)
	web := h.repo(t, "acme/web")

	res := h.sync.SyncPullRequests(ctx, web.ID)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, model.ReconcileCounts{Added: 1}, res.PullRequests)
	assert.Nil(t, h.repo(t, "acme/web").LastSyncedAt)
}

func TestSyncCommits_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unlinked := h.seedRepository(t, "555", "acme/orphan", 0)

	tests := []struct {
		name   string
		repoID int64
		kind   model.ErrorKind
	}{
		{"unknown repository", 9999, model.KindNotFound},
		{"repository without account", unlinked.ID, model.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.sync.SyncCommits(ctx, tt.repoID)
			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Empty(t, res.RunID)
		})
	}
}

func TestStatus_UnknownAccountIsIdle(t *testing.T) {
	h := newHarness(t)

	status := h.sync.Status(42)

	assert.Equal(t, int64(42), status.AccountID)
	assert.Equal(t, model.SyncIdle, status.Phase)
	assert.Nil(t, status.LastResult)
}
