package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 1, cfg.API.RetryAttempts)
	assert.Equal(t, "phased", cfg.Upload.Policy)
	assert.Equal(t, 10, cfg.Upload.ClientBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Upload.ClientDelay)
	assert.Equal(t, 20, cfg.Upload.BackupBatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Upload.BackupPause)
	assert.Equal(t, "SUCESSO", cfg.Upload.SuccessToken)
	assert.Equal(t, 10, cfg.Report.MaxErrors)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Journal.Path)
	assert.Equal(t, 8080, cfg.Sandbox.Port)
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://api.example.com
  retry_attempts: 3
upload:
  policy: interleaved
  client_batch_size: 5
  client_delay: 200ms
report:
  max_errors: 0
`), 0o644))
	t.Setenv("BACKUP_LOADER_UPLOAD_CLIENT_BATCH_SIZE", "7")
	t.Setenv("BACKUP_LOADER_LOG_LEVEL", "debug")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.API.RetryAttempts)
	assert.Equal(t, "interleaved", cfg.Upload.Policy)
	assert.Equal(t, 7, cfg.Upload.ClientBatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Upload.ClientDelay)
	assert.Equal(t, 0, cfg.Report.MaxErrors)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDefaultFileInConfigDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "backup-loader.yaml"),
		[]byte("journal:\n  path: runs.db\n"), 0o644))
	chdir(t, dir)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "runs.db", cfg.Journal.Path)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())

	v := New()
	v.Set("report.max_errors", -1)
	_, err := Load(v, "")
	assert.Error(t, err)

	v = New()
	v.Set("api.base_url", "")
	_, err = Load(v, "")
	assert.Error(t, err)
}

func TestClientPacingFollowsPolicy(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("BACKUP_LOADER_UPLOAD_POLICY", "interleaved")
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Upload.ClientBatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Upload.ClientDelay)
	assert.Equal(t, 20, cfg.Upload.BackupBatchSize)

	t.Setenv("BACKUP_LOADER_UPLOAD_CLIENT_DELAY", "1s")
	cfg, err = Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Upload.ClientBatchSize)
	assert.Equal(t, time.Second, cfg.Upload.ClientDelay)
}
