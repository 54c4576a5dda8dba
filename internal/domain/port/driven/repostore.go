// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// ErrRepositoryNotFound indicates the requested repository does not exist.
var ErrRepositoryNotFound = fmt.Errorf("repository %w", model.ErrNotFound)

// RepositoryStore defines the driven port for tracked repository persistence.
// GetByExternalID returns (nil, nil) when no row matches the natural key.
type RepositoryStore interface {
	GetByID(ctx context.Context, id int64) (model.Repository, error)
	GetByExternalID(ctx context.Context, platform model.Platform, externalID string) (*model.Repository, error)
	// Create inserts repo and sets its ID.
	Create(ctx context.Context, repo *model.Repository) error
	// Update overwrites the metadata columns. The watermark is left untouched.
	Update(ctx context.Context, repo model.Repository) error
	// AdvanceWatermark sets last_synced_at for a repository.
	AdvanceWatermark(ctx context.Context, id int64, syncedAt time.Time) error
	ListByAccount(ctx context.Context, accountID int64) ([]model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
}
