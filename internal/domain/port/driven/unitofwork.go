package driven

import (
	"context"
	"fmt"
)

// Stores groups the entity stores bound to one connection or transaction.
type Stores interface {
	Developers() DeveloperStore
	Repositories() RepositoryStore
	Commits() CommitStore
	PullRequests() PullRequestStore
	Metrics() MetricStore
}

// Tx is a unit of work. Writes made through its stores become visible only after Commit.
type Tx interface {
	Stores
	Commit() error
	Rollback() error
}

// UnitOfWork hands out non-transactional stores and begins transactions.
type UnitOfWork interface {
	Stores
	Begin(ctx context.Context) (Tx, error)
}

// WithinTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func WithinTx(ctx context.Context, uow UnitOfWork, fn func(Tx) error) (err error) {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
