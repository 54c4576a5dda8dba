package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// PullRequestQuery filters pull requests. Zero-valued fields do not constrain
// the result. From/Until bound created_at; MergedFrom/MergedUntil bound merged_at
// and imply a merged pull request. Lower bounds are inclusive, upper bounds exclusive.
type PullRequestQuery struct {
	AuthorID     int64
	RepositoryID int64
	Status       model.PRStatus
	From         time.Time
	Until        time.Time
	MergedFrom   time.Time
	MergedUntil  time.Time
}

// PullRequestStore defines the driven port for pull request persistence.
type PullRequestStore interface {
	// GetByNumber looks up a pull request by its natural key. Returns (nil, nil) when absent.
	GetByNumber(ctx context.Context, repositoryID int64, number int) (*model.PullRequest, error)
	Create(ctx context.Context, pr *model.PullRequest) error
	Update(ctx context.Context, pr model.PullRequest) error
	// Find returns matching pull requests ordered by created_at, then id.
	Find(ctx context.Context, q PullRequestQuery) ([]model.PullRequest, error)
	Count(ctx context.Context, q PullRequestQuery) (int, error)
}
