package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vello.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
db_path: /tmp/test.db
log_level: debug
assets:
  fetch_timeout: 5s
  max_bytes: 1048576
mailer:
  workers: 4
  send_delay: 250ms
jobs:
  record_delay: 50ms
  retention_days: 7
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, "/tmp/test.db", cfg.DBPath)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Assets.FetchTimeout)
	require.Equal(t, int64(1<<20), cfg.Assets.MaxBytes)
	require.Equal(t, 4, cfg.Mailer.Workers)
	require.Equal(t, 250*time.Millisecond, cfg.Mailer.SendDelay)
	require.Equal(t, 50*time.Millisecond, cfg.Jobs.RecordDelay)
	require.Equal(t, 7, cfg.Jobs.RetentionDays)
	// untouched fields keep defaults
	require.Equal(t, 10*time.Minute, cfg.Assets.CacheTTL)
	require.Equal(t, 1, cfg.Jobs.Workers)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vello.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mailer:\n  send_delay: fast\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "send_delay")
}

func TestValidateBounds(t *testing.T) {
	cfg := Default()
	cfg.Mailer.Workers = 64
	require.Error(t, cfg.Validate())
}
