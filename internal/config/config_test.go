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
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidWithDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
mode: hybrid
stores:
  monolith: TASKS.md
  distributed: tasks
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeHybrid, cfg.Mode)
	assert.Equal(t, 5*time.Second, cfg.Sync.LockTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.ReadRetryDelay)
	assert.Equal(t, "migration", cfg.Sync.Phase)
	assert.Equal(t, 10, cfg.Checkpoints.Keep)
	assert.Equal(t, 0, cfg.Checks.RoundTripSample)
	assert.Nil(t, cfg.Redis)

	assert.Equal(t, filepath.Join(cfg.Root, "TASKS.md"), cfg.MonolithPath())
	assert.Equal(t, filepath.Join(cfg.Root, "tasks"), cfg.DistributedPath())
	assert.Equal(t, filepath.Join(cfg.Root, ".warren"), cfg.StateDir())
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
mode: monolith
stores:
  monolith: db/TASKS.md
  distributed: db/tasks
sync:
  lock_timeout: 2s
  read_retry_delay: 50ms
  phase: cutover
checkpoints:
  keep: 3
validate:
  round_trip_sample: 5
redis:
  addr: localhost:6379
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Sync.LockTimeout)
	assert.Equal(t, "cutover", cfg.Sync.Phase)
	assert.Equal(t, 3, cfg.Checkpoints.Keep)
	assert.Equal(t, 5, cfg.Checks.RoundTripSample)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, filepath.Base(cfg.Root), cfg.Redis.Workspace, "workspace namespace defaults to the root dir name")
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad version",
			content: "version: \"2.0\"\nmode: hybrid\nstores:\n  monolith: a\n  distributed: b\n",
			wantErr: "unsupported version",
		},
		{
			name:    "bad mode",
			content: "version: \"1.0\"\nmode: federated\nstores:\n  monolith: a\n  distributed: b\n",
			wantErr: "unknown mode",
		},
		{
			name:    "missing monolith path",
			content: "version: \"1.0\"\nmode: hybrid\nstores:\n  distributed: b\n",
			wantErr: "stores.monolith is required",
		},
		{
			name:    "redis without addr",
			content: "version: \"1.0\"\nmode: hybrid\nstores:\n  monolith: a\n  distributed: b\nredis: {}\n",
			wantErr: "redis.addr is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
