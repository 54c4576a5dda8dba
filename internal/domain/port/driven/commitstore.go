package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// CommitQuery filters commits. Zero-valued fields do not constrain the result.
// From is inclusive and Until is exclusive, both applied to committed_at.
type CommitQuery struct {
	DeveloperID  int64
	RepositoryID int64
	From         time.Time
	Until        time.Time
}

// CommitStore defines the driven port for commit persistence.
type CommitStore interface {
	// GetBySHA looks up a commit by its natural key. Returns (nil, nil) when absent.
	GetBySHA(ctx context.Context, repositoryID int64, sha string) (*model.Commit, error)
	Create(ctx context.Context, c *model.Commit) error
	Update(ctx context.Context, c model.Commit) error
	// Find returns matching commits ordered by committed_at, then id.
	Find(ctx context.Context, q CommitQuery) ([]model.Commit, error)
	Count(ctx context.Context, q CommitQuery) (int, error)
}
