// Package repotest opens migrated throwaway stores for tests.
package repotest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"dataset-service/internal/models"
	"dataset-service/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewStore returns a store over a migrated sqlite file in t's temp dir.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "test.db"))
	db, err := repository.Open(repository.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repository.Migrate(db, zap.NewNop()))
	return repository.NewStore(db, zap.NewNop())
}

// NewUser inserts a user with the given free balance.
func NewUser(t testing.TB, store *repository.Store, free int64) *models.User {
	t.Helper()
	u := &models.User{FreeCharactersRemaining: free}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

// NewCompletedContent inserts a content row already in completed state.
func NewCompletedContent(t testing.TB, store *repository.Store, userID, text string) *models.Content {
	t.Helper()
	c := &models.Content{
		UserID:         userID,
		Type:           models.ContentText,
		Status:         models.ContentCompleted,
		ExtractedText:  &text,
		CharacterCount: int64(len([]rune(text))),
	}
	require.NoError(t, store.CreateContent(context.Background(), c))
	return c
}
