package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() keeps tests isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewMemoryDB(context.Background(), t.Name())
	require.NoError(t, err)

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func seedDeveloper(t *testing.T, store *Store, email, username string) model.Developer {
	t.Helper()
	dev := model.Developer{Email: email, GitHubUsername: username}
	require.NoError(t, store.Developers().Create(context.Background(), &dev))
	return dev
}

func seedRepository(t *testing.T, store *Store, externalID, fullName string) model.Repository {
	t.Helper()
	_, name, err := model.SplitFullName(fullName)
	require.NoError(t, err)
	repo := model.Repository{
		Platform:   model.PlatformGitHub,
		ExternalID: externalID,
		Name:       name,
		FullName:   fullName,
		IsActive:   true,
	}
	require.NoError(t, store.Repositories().Create(context.Background(), &repo))
	return repo
}
