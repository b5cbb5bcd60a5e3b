package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Storage.BlobTTL)
	assert.Equal(t, 2, cfg.Pipeline.MaxConcurrentJobs)
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kocr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9900
pipeline:
  max_concurrent_jobs: 5
engines:
  tesseract_languages: [kor]
`), 0o644))

	t.Setenv("KOCR_PADDLE_URL", "http://paddle.internal:8866")
	t.Setenv("KOCR_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9900, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentJobs)
	assert.Equal(t, []string{"kor"}, cfg.Engines.TesseractLanguages)
	assert.Equal(t, "http://paddle.internal:8866", cfg.Engines.Paddle.BaseURL)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)

	// Untouched sections keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.Jobs.TTL)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kocr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: s3\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "storage driver")
}

func TestSQLitePathEnvSwitchesDriver(t *testing.T) {
	t.Setenv("KOCR_SQLITE_PATH", "/var/lib/kocr/jobs.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Jobs.Driver)
	assert.Equal(t, "/var/lib/kocr/jobs.db", cfg.Jobs.SQLite.Path)
}
