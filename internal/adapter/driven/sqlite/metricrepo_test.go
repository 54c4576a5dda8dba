package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

func TestMetricRepo_UpsertOverwrites(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	dev := seedDeveloper(t, store, "a@example.com", "a")

	require.NoError(t, store.Metrics().Upsert(ctx, model.Metric{
		DeveloperID: dev.ID, Kind: model.MetricCommits, Value: 3, Timestamp: ts("2024-03-01T00:00:00Z"),
	}))
	require.NoError(t, store.Metrics().Upsert(ctx, model.Metric{
		DeveloperID: dev.ID, Kind: model.MetricLinesAdded, Value: 120, Timestamp: ts("2024-03-01T00:00:00Z"),
	}))
	require.NoError(t, store.Metrics().Upsert(ctx, model.Metric{
		DeveloperID: dev.ID,
		Kind:        model.MetricCommits,
		Value:       9,
		Timestamp:   ts("2024-03-02T00:00:00Z"),
		Metadata:    `{"startDate":"2024-02-01","endDate":"2024-03-02"}`,
	}))

	metrics, err := store.Metrics().ListByDeveloper(ctx, dev.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	byKind := map[model.MetricKind]model.Metric{}
	for _, m := range metrics {
		byKind[m.Kind] = m
	}
	assert.InDelta(t, 9.0, byKind[model.MetricCommits].Value, 0.001)
	assert.Equal(t, `{"startDate":"2024-02-01","endDate":"2024-03-02"}`, byKind[model.MetricCommits].Metadata)
	assert.Equal(t, "{}", byKind[model.MetricLinesAdded].Metadata)
	assert.Nil(t, byKind[model.MetricLinesAdded].RepositoryID)
}
