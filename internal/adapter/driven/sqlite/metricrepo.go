package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricStore = (*MetricRepo)(nil)

// MetricRepo is the SQLite implementation of the MetricStore port interface.
type MetricRepo struct {
	w querier
	r querier
}

// Upsert keeps one row per (developer_id, kind), overwriting the previous value.
func (s *MetricRepo) Upsert(ctx context.Context, m model.Metric) error {
	const query = `
		INSERT INTO metrics (developer_id, repository_id, kind, value, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (developer_id, kind) DO UPDATE SET
			repository_id = excluded.repository_id,
			value = excluded.value,
			timestamp = excluded.timestamp,
			metadata = excluded.metadata
	`
	var repoID any
	if m.RepositoryID != nil {
		repoID = *m.RepositoryID
	}
	metadata := m.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := s.w.ExecContext(ctx, query, m.DeveloperID, repoID, m.Kind, m.Value, formatTime(m.Timestamp), metadata)
	if err != nil {
		return fmt.Errorf("upsert metric %s for developer %d: %w", m.Kind, m.DeveloperID, err)
	}
	return nil
}

// ListByDeveloper returns the developer's current metrics ordered by kind.
func (s *MetricRepo) ListByDeveloper(ctx context.Context, developerID int64) ([]model.Metric, error) {
	const query = `
		SELECT id, developer_id, repository_id, kind, value, timestamp, metadata
		FROM metrics WHERE developer_id = ? ORDER BY kind
	`
	rows, err := s.r.QueryContext(ctx, query, developerID)
	if err != nil {
		return nil, fmt.Errorf("list metrics for developer %d: %w", developerID, err)
	}
	defer rows.Close()

	metrics := []model.Metric{}
	for rows.Next() {
		var m model.Metric
		var repoID sql.NullInt64
		var ts string
		if err := rows.Scan(&m.ID, &m.DeveloperID, &repoID, &m.Kind, &m.Value, &ts, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if repoID.Valid {
			id := repoID.Int64
			m.RepositoryID = &id
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse metric timestamp: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return metrics, nil
}
