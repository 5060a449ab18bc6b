package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Jobs.PollInterval())
	assert.Equal(t, 24*time.Hour, cfg.Jobs.ScheduleInterval())
	assert.Equal(t, "https://api.perplexity.ai", cfg.Engines.Perplexity.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Engines.Perplexity.Model)
	assert.Equal(t, 20, cfg.Engines.Perplexity.RequestsPerMin)
	assert.Equal(t, 45*time.Second, cfg.Engines.Perplexity.Timeout())
	assert.Equal(t, "gemini-2.0-flash", cfg.Engines.Gemini.Model)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Engines.Perplexity.Enabled())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: visibility.db
log:
  level: debug
  format: console
server:
  port: 9090
jobs:
  workers: 8
engines:
  perplexity:
    key: pplx-test
    requests_per_min: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "visibility.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.True(t, cfg.Engines.Perplexity.Enabled())
	assert.Equal(t, 5, cfg.Engines.Perplexity.RequestsPerMin)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, "sonar-pro", cfg.Engines.Perplexity.Model)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("VISIBILITY_SERVER_PORT", "7070")
	t.Setenv("VISIBILITY_ENGINES_PERPLEXITY_MODEL", "sonar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sonar", cfg.Engines.Perplexity.Model)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
