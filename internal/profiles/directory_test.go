package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/config"
)

func TestFromConfig(t *testing.T) {
	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("from-file\n"), 0600))
	t.Setenv("CATALOG_CACHE_PROFILE_LIVING_ROOM_PASSWORD", "from-env")

	dir, err := FromConfig([]config.ProfileConfig{
		{ID: "home", Provider: config.ProviderConfig{URL: "http://panel.example/", Username: "alice", PasswordFile: passwordFile}},
		{ID: "living-room", Name: "Living room", Provider: config.ProviderConfig{URL: "http://other.example", Username: "bob"}},
	})
	require.NoError(t, err)

	home, err := dir.Get("home")
	require.NoError(t, err)
	assert.Equal(t, "home", home.Name)
	assert.Equal(t, "http://panel.example", home.ProviderURL)
	assert.Equal(t, "from-file", home.Credentials.Password)

	living, err := dir.Get("living-room")
	require.NoError(t, err)
	assert.Equal(t, "Living room", living.Name)
	assert.Equal(t, "from-env", living.Credentials.Password)

	assert.Equal(t, []string{"home", "living-room"}, dir.IDs())
}

func TestFromConfigMissingPasswordFile(t *testing.T) {
	t.Parallel()

	_, err := FromConfig([]config.ProfileConfig{
		{ID: "home", Provider: config.ProviderConfig{URL: "http://panel.example", PasswordFile: "/does/not/exist"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile home")
}

func TestGet(t *testing.T) {
	t.Parallel()

	dir := New(&catalog.Profile{ID: "home", Credentials: catalog.Credentials{Username: "u", Password: "p"}})

	_, err := dir.Get("missing")
	require.ErrorIs(t, err, catalog.ErrProfileNotFound)

	p, err := dir.Get("home")
	require.NoError(t, err)
	p.Credentials.Password = "changed"

	again, err := dir.Get("home")
	require.NoError(t, err)
	assert.Equal(t, "p", again.Credentials.Password, "callers get copies")
}
