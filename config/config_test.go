package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "CGraph", cfg.Auth.AppName)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.True(t, cfg.Breach.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
auth:
  app_name: TestApp
  access_ttl: 10m
  refresh_ttl: 168h
breach:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "TestApp", cfg.Auth.AppName)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	assert.False(t, cfg.Breach.Enabled)

	// Unspecified sections keep their defaults.
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache.internal:6379/1")

	path := writeConfig(t, `
redis:
  url: ${TEST_REDIS_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://cache.internal:6379/1", cfg.Redis.URL)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
auth:
  access_ttl: soon
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}
