package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-cache/database"
	"github.com/stacklok/catalog-cache/internal/catalog"
)

// NewTestStore opens a migrated store in a per-test temporary directory,
// seeded with the given profile ids. The store is closed on test cleanup.
func NewTestStore(t testing.TB, profileIDs ...string) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	_, err := database.MigrateUp(path)
	require.NoError(t, err, "failed to migrate test database")

	s, err := Open(context.Background(), path)
	require.NoError(t, err, "failed to open test store")
	t.Cleanup(func() { _ = s.Close() })

	if len(profileIDs) > 0 {
		profiles := make([]*catalog.Profile, 0, len(profileIDs))
		for _, id := range profileIDs {
			profiles = append(profiles, &catalog.Profile{
				ID:          id,
				Name:        id,
				ProviderURL: fmt.Sprintf("http://%s.example", id),
				Credentials: catalog.Credentials{Username: "user", Password: "pass"},
			})
		}
		require.NoError(t, s.SyncProfiles(context.Background(), profiles))
	}
	return s
}
