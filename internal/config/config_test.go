package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "server.yaml", `
paths:
  repository: /srv/inventory
server:
  port: 9000
  routes:
    patch: /api/patch
watch:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/inventory", cfg.Paths.Repository)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/api/patch", cfg.Server.Routes.Patch)
	assert.False(t, cfg.Watch.Enabled)

	// Unset fields keep their defaults
	assert.Equal(t, "inventory.json", cfg.Paths.InventoryFile)
	assert.Equal(t, "/inventory/commit", cfg.Server.Routes.Commit)
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "server.json", `{
  "paths": {"repository": "repo", "patches": "staged"},
  "server": {"port": 8080}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "repo", cfg.Paths.Repository)
	assert.Equal(t, "staged", cfg.Paths.Patches)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown extension", func(t *testing.T) {
		path := writeConfig(t, "server.toml", "port = 8000")
		_, err := Load(path)
		assert.ErrorContains(t, err, "unsupported config format")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeConfig(t, "server.yaml", "\t: not yaml")
		_, err := Load(path)
		assert.ErrorContains(t, err, "parse config")
	})
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("port out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 70000
		assert.ErrorContains(t, cfg.Validate(), "out of range")
	})

	t.Run("absolute inventory file", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.InventoryFile = "/etc/inventory.json"
		assert.ErrorContains(t, cfg.Validate(), "relative")
	})

	t.Run("route without leading slash", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Routes.Log = "log"
		assert.ErrorContains(t, cfg.Validate(), "must start with /")
	})
}
