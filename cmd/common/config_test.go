package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFixture(t, `
log: warn
catalogPath: /some/directory/catalog.db
synchronize:
  Documents: ~/Documents
auth:
  client_id: abc123
`)

	conf := LoadConfig(path)
	assert.Equal(t, "warn", conf.LogLevel)
	assert.Equal(t, "/some/directory/catalog.db", conf.CatalogPath)
	assert.Equal(t, "abc123", conf.ClientID)
	assert.Equal(t, 3, conf.HashFrequency)
}

func TestConfigMergeFillsUnsetFields(t *testing.T) {
	path := writeFixture(t, `
catalogPath: /some/directory/catalog.db
`)

	conf := LoadConfig(path)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, "/some/directory/catalog.db", conf.CatalogPath)
	assert.Equal(t, 3, conf.HashFrequency)
}

func TestLoadNonexistentConfigUsesDefaults(t *testing.T) {
	conf := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, 3, conf.HashFrequency)
	assert.Contains(t, conf.CatalogPath, "mirror-to-onedrive")
}

func TestSyncRootsExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory available in this environment")
	}
	conf := Config{Synchronize: map[string]string{"Documents": "~/Documents"}}
	roots := conf.SyncRoots()
	require.Len(t, roots, 1)
	assert.Equal(t, "Documents", roots[0].RemoteName)
	assert.Equal(t, filepath.Join(home, "Documents"), roots[0].LocalPath)
}

func TestWriteConfigEscapesHomeAndRoundTrips(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	conf := Config{
		LogLevel:    "debug",
		CatalogPath: filepath.Join(home, "cache/catalog.db"),
		TokenPath:   filepath.Join(home, "cache/tokens.json"),
	}
	path := filepath.Join(t.TempDir(), "written.yml")
	require.NoError(t, conf.WriteConfig(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "~/cache/catalog.db")

	loaded := LoadConfig(path)
	assert.Equal(t, conf.CatalogPath, loaded.CatalogPath)
}
