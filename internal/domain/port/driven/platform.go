package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// Fetch errors are classified with the model taxonomy: model.ErrNotFound,
// model.ErrUnauthorized, *model.ServiceUnavailableError (which also covers
// translated rate limits).

// RepositoryFetcher lists every repository visible to the account's credential.
type RepositoryFetcher interface {
	FetchRepositories(ctx context.Context) ([]model.FetchedRepository, error)
}

// CommitFetcher fetches commits for one owner/project. A nil since performs a full fetch.
type CommitFetcher interface {
	FetchCommits(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedCommit, error)
}

// PullRequestFetcher fetches pull requests updated after since, or all of them when since is nil.
type PullRequestFetcher interface {
	FetchPullRequests(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedPullRequest, error)
}

// PlatformClient is the full fetch surface bound to one account's credential.
type PlatformClient interface {
	RepositoryFetcher
	CommitFetcher
	PullRequestFetcher
}

// PlatformClientFactory builds a PlatformClient for an account's credential.
type PlatformClientFactory interface {
	ForAccount(account model.Account) (PlatformClient, error)
}
