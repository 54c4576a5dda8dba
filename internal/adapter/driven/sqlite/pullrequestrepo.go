package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PullRequestStore = (*PullRequestRepo)(nil)

// PullRequestRepo is the SQLite implementation of the PullRequestStore port interface.
type PullRequestRepo struct {
	w querier
	r querier
}

const pullRequestColumns = `id, repository_id, author_id, number, title, description, url, status,
	additions, deletions, changed_files, created_at, updated_at, closed_at, merged_at`

// GetByNumber returns nil, nil when the pull request is not stored for the repository.
func (s *PullRequestRepo) GetByNumber(ctx context.Context, repositoryID int64, number int) (*model.PullRequest, error) {
	pr, err := scanPullRequest(s.r.QueryRowContext(ctx,
		`SELECT `+pullRequestColumns+` FROM pull_requests WHERE repository_id = ? AND number = ?`, repositoryID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	return pr, nil
}

func (s *PullRequestRepo) Create(ctx context.Context, pr *model.PullRequest) error {
	const query = `
		INSERT INTO pull_requests (
			repository_id, author_id, number, title, description, url, status,
			additions, deletions, changed_files, created_at, updated_at, closed_at, merged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.w.ExecContext(ctx, query,
		pr.RepositoryID, pr.AuthorID, pr.Number, pr.Title, pr.Description, pr.URL, pr.Status,
		pr.Additions, pr.Deletions, pr.ChangedFiles, formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt),
		nullableTime(pr.ClosedAt), nullableTime(pr.MergedAt))
	if err != nil {
		return fmt.Errorf("create pull request #%d: %w", pr.Number, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read pull request id: %w", err)
	}
	pr.ID = id
	return nil
}

// Update overwrites every mutable column with the latest fetched state.
func (s *PullRequestRepo) Update(ctx context.Context, pr model.PullRequest) error {
	const query = `
		UPDATE pull_requests SET
			author_id = ?, title = ?, description = ?, url = ?, status = ?, additions = ?,
			deletions = ?, changed_files = ?, created_at = ?, updated_at = ?, closed_at = ?, merged_at = ?
		WHERE id = ?
	`
	_, err := s.w.ExecContext(ctx, query,
		pr.AuthorID, pr.Title, pr.Description, pr.URL, pr.Status, pr.Additions,
		pr.Deletions, pr.ChangedFiles, formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt),
		nullableTime(pr.ClosedAt), nullableTime(pr.MergedAt), pr.ID)
	if err != nil {
		return fmt.Errorf("update pull request #%d: %w", pr.Number, err)
	}
	return nil
}

func (s *PullRequestRepo) Find(ctx context.Context, q driven.PullRequestQuery) ([]model.PullRequest, error) {
	where, args := pullRequestFilter(q)
	rows, err := s.r.QueryContext(ctx,
		`SELECT `+pullRequestColumns+` FROM pull_requests`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("find pull requests: %w", err)
	}
	defer rows.Close()

	prs := []model.PullRequest{}
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}
	return prs, nil
}

func (s *PullRequestRepo) Count(ctx context.Context, q driven.PullRequestQuery) (int, error) {
	where, args := pullRequestFilter(q)
	var n int
	if err := s.r.QueryRowContext(ctx, `SELECT COUNT(*) FROM pull_requests`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pull requests: %w", err)
	}
	return n, nil
}

func pullRequestFilter(q driven.PullRequestQuery) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if q.AuthorID != 0 {
		add("author_id = ?", q.AuthorID)
	}
	if q.RepositoryID != 0 {
		add("repository_id = ?", q.RepositoryID)
	}
	if q.Status != "" {
		add("status = ?", q.Status)
	}
	if !q.From.IsZero() {
		add("created_at >= ?", formatTime(q.From))
	}
	if !q.Until.IsZero() {
		add("created_at < ?", formatTime(q.Until))
	}
	if !q.MergedFrom.IsZero() || !q.MergedUntil.IsZero() {
		conds = append(conds, "status = 'merged' AND merged_at IS NOT NULL")
	}
	if !q.MergedFrom.IsZero() {
		add("merged_at >= ?", formatTime(q.MergedFrom))
	}
	if !q.MergedUntil.IsZero() {
		add("merged_at < ?", formatTime(q.MergedUntil))
	}
	return whereClause(conds), args
}

func scanPullRequest(s scanner) (*model.PullRequest, error) {
	var (
		pr                   model.PullRequest
		createdAt, updatedAt string
		closedAt, mergedAt   sql.NullString
	)

	err := s.Scan(&pr.ID, &pr.RepositoryID, &pr.AuthorID, &pr.Number, &pr.Title, &pr.Description,
		&pr.URL, &pr.Status, &pr.Additions, &pr.Deletions, &pr.ChangedFiles,
		&createdAt, &updatedAt, &closedAt, &mergedAt)
	if err != nil {
		return nil, err
	}

	if pr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if pr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if pr.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	if pr.MergedAt, err = parseNullTime(mergedAt); err != nil {
		return nil, fmt.Errorf("parse merged_at: %w", err)
	}
	return &pr, nil
}
