package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// Sentinel errors returned by DeveloperStore implementations.
var (
	// ErrDeveloperNotFound indicates the requested developer does not exist.
	ErrDeveloperNotFound = fmt.Errorf("developer %w", model.ErrNotFound)

	// ErrDeveloperExists indicates another writer already created a developer
	// with the same email. Callers re-fetch by email and use that row.
	ErrDeveloperExists = errors.New("developer already exists")
)

// DeveloperStore defines the driven port for developer identity persistence.
// Lookups by email or username return (nil, nil) when absent.
type DeveloperStore interface {
	GetByID(ctx context.Context, id int64) (model.Developer, error)
	GetByEmail(ctx context.Context, email string) (*model.Developer, error)
	GetByUsername(ctx context.Context, username string) (*model.Developer, error)
	// Create inserts dev and sets its ID. Returns ErrDeveloperExists on an email collision.
	Create(ctx context.Context, dev *model.Developer) error
	// Update returns ErrDeveloperExists when the new email belongs to another row.
	Update(ctx context.Context, dev model.Developer) error
	ListAll(ctx context.Context) ([]model.Developer, error)
	// ListByIDs returns the developers with the given IDs keyed by ID.
	ListByIDs(ctx context.Context, ids []int64) (map[int64]model.Developer, error)
	Count(ctx context.Context) (int, error)
}
