package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.UnitOfWork = (*Store)(nil)
	_ driven.Tx         = (*Tx)(nil)
)

// stores binds every entity repo to one writer and one reader.
type stores struct {
	developers   *DeveloperRepo
	repositories *RepositoryRepo
	commits      *CommitRepo
	pullRequests *PullRequestRepo
	metrics      *MetricRepo
}

func newStores(w, r querier) stores {
	return stores{
		developers:   &DeveloperRepo{w: w, r: r},
		repositories: &RepositoryRepo{w: w, r: r},
		commits:      &CommitRepo{w: w, r: r},
		pullRequests: &PullRequestRepo{w: w, r: r},
		metrics:      &MetricRepo{w: w, r: r},
	}
}

func (s stores) Developers() driven.DeveloperStore     { return s.developers }
func (s stores) Repositories() driven.RepositoryStore  { return s.repositories }
func (s stores) Commits() driven.CommitStore           { return s.commits }
func (s stores) PullRequests() driven.PullRequestStore { return s.pullRequests }
func (s stores) Metrics() driven.MetricStore           { return s.metrics }

// Store is the unit of work over a DB. Its own stores read from the reader
// pool and write through the writer; Begin opens a writer transaction.
type Store struct {
	stores
	db *DB
}

// NewStore creates a Store backed by db.
func NewStore(db *DB) *Store {
	return &Store{stores: newStores(db.Writer, db.Reader), db: db}
}

// Begin starts a transaction. Reads through the returned Tx see its own writes.
func (s *Store) Begin(ctx context.Context) (driven.Tx, error) {
	sqlTx, err := s.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{stores: newStores(sqlTx, sqlTx), tx: sqlTx}, nil
}

// Tx is a unit of work bound to one SQLite transaction.
type Tx struct {
	stores
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
