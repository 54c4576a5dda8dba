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
var _ driven.RepositoryStore = (*RepositoryRepo)(nil)

// RepositoryRepo is the SQLite implementation of the RepositoryStore port interface.
type RepositoryRepo struct {
	w querier
	r querier
}

const repositoryColumns = `id, account_id, platform, external_id, name, full_name, description, url,
	default_branch, language, is_private, is_fork, is_active, stargazers_count, forks_count,
	open_issues_count, pushed_at, last_synced_at, created_at, updated_at`

func (s *RepositoryRepo) GetByID(ctx context.Context, id int64) (model.Repository, error) {
	repo, err := scanRepository(s.r.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Repository{}, fmt.Errorf("get repository %d: %w", id, driven.ErrRepositoryNotFound)
	}
	if err != nil {
		return model.Repository{}, fmt.Errorf("get repository %d: %w", id, err)
	}
	return *repo, nil
}

// GetByExternalID looks a repository up by its natural key. Returns nil, nil if absent.
func (s *RepositoryRepo) GetByExternalID(ctx context.Context, platform model.Platform, externalID string) (*model.Repository, error) {
	repo, err := scanRepository(s.r.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE platform = ? AND external_id = ?`, platform, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", platform, externalID, err)
	}
	return repo, nil
}

func (s *RepositoryRepo) Create(ctx context.Context, repo *model.Repository) error {
	const query = `
		INSERT INTO repositories (
			account_id, platform, external_id, name, full_name, description, url, default_branch,
			language, is_private, is_fork, is_active, stargazers_count, forks_count, open_issues_count,
			pushed_at, last_synced_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	res, err := s.w.ExecContext(ctx, query,
		nullableID(repo.AccountID), repo.Platform, repo.ExternalID, repo.Name, repo.FullName,
		repo.Description, repo.URL, repo.DefaultBranch, repo.Language,
		boolToInt(repo.IsPrivate), boolToInt(repo.IsFork), boolToInt(repo.IsActive),
		repo.StargazersCount, repo.ForksCount, repo.OpenIssuesCount,
		nullableTime(repo.PushedAt), nullableTime(repo.LastSyncedAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("create repository %s: %w", repo.FullName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read repository id: %w", err)
	}
	repo.ID = id
	repo.CreatedAt = now
	repo.UpdatedAt = now
	return nil
}

// Update overwrites repository metadata. last_synced_at is only changed by AdvanceWatermark.
func (s *RepositoryRepo) Update(ctx context.Context, repo model.Repository) error {
	const query = `
		UPDATE repositories SET
			account_id = ?, name = ?, full_name = ?, description = ?, url = ?, default_branch = ?,
			language = ?, is_private = ?, is_fork = ?, is_active = ?, stargazers_count = ?,
			forks_count = ?, open_issues_count = ?, pushed_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.w.ExecContext(ctx, query,
		nullableID(repo.AccountID), repo.Name, repo.FullName, repo.Description, repo.URL,
		repo.DefaultBranch, repo.Language, boolToInt(repo.IsPrivate), boolToInt(repo.IsFork),
		boolToInt(repo.IsActive), repo.StargazersCount, repo.ForksCount, repo.OpenIssuesCount,
		nullableTime(repo.PushedAt), formatTime(time.Now()), repo.ID,
	)
	if err != nil {
		return fmt.Errorf("update repository %s: %w", repo.FullName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update repository %d: %w", repo.ID, driven.ErrRepositoryNotFound)
	}
	return nil
}

func (s *RepositoryRepo) AdvanceWatermark(ctx context.Context, id int64, syncedAt time.Time) error {
	res, err := s.w.ExecContext(ctx,
		`UPDATE repositories SET last_synced_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(syncedAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("advance watermark for repository %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("advance watermark for repository %d: %w", id, driven.ErrRepositoryNotFound)
	}
	return nil
}

// ListByAccount returns the active repositories last listed by accountID, ordered by full name.
func (s *RepositoryRepo) ListByAccount(ctx context.Context, accountID int64) ([]model.Repository, error) {
	return s.list(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE account_id = ? AND is_active = 1 ORDER BY full_name`, accountID)
}

func (s *RepositoryRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	return s.list(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY full_name`)
}

func (s *RepositoryRepo) list(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := s.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}
	return repos, nil
}

func scanRepository(s scanner) (*model.Repository, error) {
	var (
		repo                      model.Repository
		accountID                 sql.NullInt64
		isPrivate, isFork, active int
		pushedAt, lastSyncedAt    sql.NullString
		createdAt, updatedAt      string
	)

	err := s.Scan(
		&repo.ID, &accountID, &repo.Platform, &repo.ExternalID, &repo.Name, &repo.FullName,
		&repo.Description, &repo.URL, &repo.DefaultBranch, &repo.Language,
		&isPrivate, &isFork, &active, &repo.StargazersCount, &repo.ForksCount, &repo.OpenIssuesCount,
		&pushedAt, &lastSyncedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.AccountID = accountID.Int64
	repo.IsPrivate = isPrivate == 1
	repo.IsFork = isFork == 1
	repo.IsActive = active == 1

	if repo.PushedAt, err = parseNullTime(pushedAt); err != nil {
		return nil, fmt.Errorf("parse pushed_at: %w", err)
	}
	if repo.LastSyncedAt, err = parseNullTime(lastSyncedAt); err != nil {
		return nil, fmt.Errorf("parse last_synced_at: %w", err)
	}
	if repo.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if repo.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &repo, nil
}
