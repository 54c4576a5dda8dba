package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommitStore = (*CommitRepo)(nil)

// CommitRepo is the SQLite implementation of the CommitStore port interface.
type CommitRepo struct {
	w querier
	r querier
}

const commitColumns = `id, repository_id, developer_id, sha, message, lines_added, lines_removed,
	files_changed, committed_at, created_at, updated_at`

// GetBySHA returns nil, nil when the commit is not stored for the repository.
func (s *CommitRepo) GetBySHA(ctx context.Context, repositoryID int64, sha string) (*model.Commit, error) {
	c, err := scanCommit(s.r.QueryRowContext(ctx,
		`SELECT `+commitColumns+` FROM commits WHERE repository_id = ? AND sha = ?`, repositoryID, sha))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}
	return c, nil
}

func (s *CommitRepo) Create(ctx context.Context, c *model.Commit) error {
	const query = `
		INSERT INTO commits (
			repository_id, developer_id, sha, message, lines_added, lines_removed,
			files_changed, committed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	res, err := s.w.ExecContext(ctx, query,
		c.RepositoryID, c.DeveloperID, c.SHA, c.Message, c.LinesAdded, c.LinesRemoved,
		c.FilesChanged, formatTime(c.CommittedAt), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create commit %s: %w", c.SHA, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read commit id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s *CommitRepo) Update(ctx context.Context, c model.Commit) error {
	const query = `
		UPDATE commits SET
			developer_id = ?, message = ?, lines_added = ?, lines_removed = ?,
			files_changed = ?, committed_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := s.w.ExecContext(ctx, query,
		c.DeveloperID, c.Message, c.LinesAdded, c.LinesRemoved, c.FilesChanged,
		formatTime(c.CommittedAt), formatTime(time.Now()), c.ID)
	if err != nil {
		return fmt.Errorf("update commit %s: %w", c.SHA, err)
	}
	return nil
}

func (s *CommitRepo) Find(ctx context.Context, q driven.CommitQuery) ([]model.Commit, error) {
	where, args := commitFilter(q)
	rows, err := s.r.QueryContext(ctx,
		`SELECT `+commitColumns+` FROM commits`+where+` ORDER BY committed_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("find commits: %w", err)
	}
	defer rows.Close()

	commits := []model.Commit{}
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

func (s *CommitRepo) Count(ctx context.Context, q driven.CommitQuery) (int, error) {
	where, args := commitFilter(q)
	var n int
	if err := s.r.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}

func commitFilter(q driven.CommitQuery) (string, []any) {
	var conds []string
	var args []any

	if q.DeveloperID != 0 {
		conds = append(conds, "developer_id = ?")
		args = append(args, q.DeveloperID)
	}
	if q.RepositoryID != 0 {
		conds = append(conds, "repository_id = ?")
		args = append(args, q.RepositoryID)
	}
	if !q.From.IsZero() {
		conds = append(conds, "committed_at >= ?")
		args = append(args, formatTime(q.From))
	}
	if !q.Until.IsZero() {
		conds = append(conds, "committed_at < ?")
		args = append(args, formatTime(q.Until))
	}
	return whereClause(conds), args
}

func scanCommit(s scanner) (*model.Commit, error) {
	var c model.Commit
	var committedAt, createdAt, updatedAt string

	err := s.Scan(&c.ID, &c.RepositoryID, &c.DeveloperID, &c.SHA, &c.Message,
		&c.LinesAdded, &c.LinesRemoved, &c.FilesChanged, &committedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if c.CommittedAt, err = parseTime(committedAt); err != nil {
		return nil, fmt.Errorf("parse committed_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &c, nil
}
