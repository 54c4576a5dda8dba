package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// Sentinel errors returned by AccountStore implementations.
var (
	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = fmt.Errorf("account %w", model.ErrNotFound)

	// ErrEncryptionKeyNotSet is returned when DEVMETRICS_SECRET_KEY has not been configured.
	ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DEVMETRICS_SECRET_KEY")
)

// AccountStore defines the driven port for platform accounts.
// The adapter encrypts tokens at rest; this interface carries plaintext.
type AccountStore interface {
	// Save creates the account for login or replaces its token.
	Save(ctx context.Context, login, token string) (model.Account, error)
	Get(ctx context.Context, id int64) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Delete(ctx context.Context, id int64) error
}
