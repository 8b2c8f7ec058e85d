package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/agrosync/internal/errors"
)

func TestLoad_defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, 1280, cfg.Photo.MaxDimension)
	assert.Equal(t, 75, cfg.Photo.Quality)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/agrosync
remote:
  base_url: https://api.farmlink.example/v1
  timeout: 10s
log:
  level: DEBUG
photo:
  quality: 60
`), 0644))

	t.Setenv("AGROSYNC_REMOTE_API_KEY", "from-env")
	t.Setenv("AGROSYNC_LOG_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/agrosync", cfg.DataDir)
	assert.Equal(t, "https://api.farmlink.example/v1", cfg.Remote.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "from-env", cfg.Remote.APIKey)
	assert.Equal(t, "WARN", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Photo.Quality)
}

func TestLoad_discoversFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agrosync.yaml"),
		[]byte("remote:\n  base_url: http://localhost:8080\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Remote.BaseURL)
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AGROSYNC_PHOTO_MAX_DIMENSION=640\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("AGROSYNC_PHOTO_MAX_DIMENSION") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Photo.MaxDimension)
}

func TestLoad_missingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("/does/not/exist.yaml")
	assert.True(t, errors.Is(err, errors.ErrInvalid))
}

func TestValidate(t *testing.T) {
	cfg := &Config{DataDir: "x", Photo: PhotoConfig{Quality: 75}}
	assert.NoError(t, cfg.Validate())

	cfg.Photo.Quality = 101
	assert.Error(t, cfg.Validate())

	cfg = &Config{DataDir: " "}
	assert.True(t, errors.Is(cfg.Validate(), errors.ErrInvalid))
}
