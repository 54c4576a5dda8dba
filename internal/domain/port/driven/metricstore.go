package driven

import (
	"context"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// MetricStore defines the driven port for cached developer metrics.
type MetricStore interface {
	// Upsert replaces the current value for (DeveloperID, Kind).
	Upsert(ctx context.Context, m model.Metric) error
	ListByDeveloper(ctx context.Context, developerID int64) ([]model.Metric, error)
}
