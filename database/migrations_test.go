package database

import (
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.db")

	m, err := NewFromConnectionString(URLForPath(path))
	require.NoError(t, err)
	defer func() {
		_, _ = m.Close()
	}()

	// Count the number of logical migrations
	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, fnames)

	for i := 1; i <= len(fnames); i++ {
		// step up
		err = m.Steps(i)
		assert.NoError(t, err)

		// step down
		err = m.Steps(-i)
		assert.NoError(t, err)

		// step up again
		err = m.Steps(i)
		assert.NoError(t, err)

		// back to an empty schema for the next round
		err = m.Steps(-i)
		assert.NoError(t, err)
	}
}

func TestMigrateUp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.db")

	version, err := MigrateUp(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	// running again is a no-op
	version, err = MigrateUp(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"profiles", "categories", "catalog_items", "catalog_search",
		"sync_state", "sync_settings", "series_seasons", "series_episodes"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestURLForPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sqlite:///var/lib/catalog.db", URLForPath("/var/lib/catalog.db"))
	assert.Equal(t, "sqlite://data/catalog.db", URLForPath("file:data/catalog.db"))
}
