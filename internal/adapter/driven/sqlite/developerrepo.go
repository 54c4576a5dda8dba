package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeveloperStore = (*DeveloperRepo)(nil)

// DeveloperRepo is the SQLite implementation of the DeveloperStore port interface.
type DeveloperRepo struct {
	w querier
	r querier
}

const developerColumns = `id, email, github_username, display_name, avatar_url, created_at, updated_at`

// GetByID returns driven.ErrDeveloperNotFound when no row matches.
func (d *DeveloperRepo) GetByID(ctx context.Context, id int64) (model.Developer, error) {
	dev, err := scanDeveloper(d.r.QueryRowContext(ctx, `SELECT `+developerColumns+` FROM developers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Developer{}, fmt.Errorf("get developer %d: %w", id, driven.ErrDeveloperNotFound)
	}
	if err != nil {
		return model.Developer{}, fmt.Errorf("get developer %d: %w", id, err)
	}
	return *dev, nil
}

// GetByEmail matches case-insensitively. Returns nil, nil if absent.
func (d *DeveloperRepo) GetByEmail(ctx context.Context, email string) (*model.Developer, error) {
	dev, err := scanDeveloper(d.r.QueryRowContext(ctx,
		`SELECT `+developerColumns+` FROM developers WHERE email = ? COLLATE NOCASE`, model.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get developer by email: %w", err)
	}
	return dev, nil
}

// GetByUsername matches case-insensitively and prefers the oldest row when
// several developers share a username. Returns nil, nil if absent.
func (d *DeveloperRepo) GetByUsername(ctx context.Context, username string) (*model.Developer, error) {
	if username == "" {
		return nil, nil
	}
	dev, err := scanDeveloper(d.r.QueryRowContext(ctx,
		`SELECT `+developerColumns+` FROM developers WHERE github_username = ? COLLATE NOCASE ORDER BY id LIMIT 1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get developer by username %s: %w", username, err)
	}
	return dev, nil
}

// Create inserts dev and assigns its ID and timestamps.
func (d *DeveloperRepo) Create(ctx context.Context, dev *model.Developer) error {
	const query = `
		INSERT INTO developers (email, github_username, display_name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	dev.Email = model.NormalizeEmail(dev.Email)

	res, err := d.w.ExecContext(ctx, query,
		dev.Email, dev.GitHubUsername, dev.DisplayName, dev.AvatarURL, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create developer %s: %w", dev.Email, driven.ErrDeveloperExists)
		}
		return fmt.Errorf("create developer %s: %w", dev.Email, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read developer id: %w", err)
	}
	dev.ID = id
	dev.CreatedAt = now
	dev.UpdatedAt = now
	return nil
}

// Update overwrites the identity columns of an existing developer.
func (d *DeveloperRepo) Update(ctx context.Context, dev model.Developer) error {
	const query = `
		UPDATE developers
		SET email = ?, github_username = ?, display_name = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := d.w.ExecContext(ctx, query,
		model.NormalizeEmail(dev.Email), dev.GitHubUsername, dev.DisplayName, dev.AvatarURL,
		formatTime(time.Now()), dev.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update developer %d: %w", dev.ID, driven.ErrDeveloperExists)
		}
		return fmt.Errorf("update developer %d: %w", dev.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update developer %d: %w", dev.ID, driven.ErrDeveloperNotFound)
	}
	return nil
}

// ListAll returns every developer ordered by id.
func (d *DeveloperRepo) ListAll(ctx context.Context) ([]model.Developer, error) {
	rows, err := d.r.QueryContext(ctx, `SELECT `+developerColumns+` FROM developers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list developers: %w", err)
	}
	defer rows.Close()

	devs := []model.Developer{}
	for rows.Next() {
		dev, err := scanDeveloper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan developer: %w", err)
		}
		devs = append(devs, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developers: %w", err)
	}
	return devs, nil
}

// ListByIDs returns the developers with the given ids keyed by id. Unknown ids are omitted.
func (d *DeveloperRepo) ListByIDs(ctx context.Context, ids []int64) (map[int64]model.Developer, error) {
	out := make(map[int64]model.Developer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.r.QueryContext(ctx,
		`SELECT `+developerColumns+` FROM developers WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("list developers by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		dev, err := scanDeveloper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan developer: %w", err)
		}
		out[dev.ID] = *dev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developers: %w", err)
	}
	return out, nil
}

func (d *DeveloperRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.r.QueryRowContext(ctx, `SELECT COUNT(*) FROM developers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count developers: %w", err)
	}
	return n, nil
}

func scanDeveloper(s scanner) (*model.Developer, error) {
	var dev model.Developer
	var createdAt, updatedAt string

	if err := s.Scan(&dev.ID, &dev.Email, &dev.GitHubUsername, &dev.DisplayName, &dev.AvatarURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if dev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if dev.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &dev, nil
}
