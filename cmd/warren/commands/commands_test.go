package commands

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for testing.T.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(findingsError{}))
	assert.Equal(t, 2, ExitCode(errors.New("disk on fire")))
}

func TestInitThenOpenWorkspace(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	forceInit = false
	require.NoError(t, runInit(nil, nil))

	ws, err := openWorkspace()
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, dir, ws.cfg.Root)
	assert.Nil(t, ws.queue)

	// The starter monolith parses cleanly and holds the seed task.
	tasks, parseErrs, err := ws.mono.Load()
	require.NoError(t, err)
	assert.Empty(t, parseErrs)
	require.Len(t, tasks, 1)
	assert.Equal(t, "T-01", tasks[0].ID)
}

func TestInitRefusesExistingWorkspace(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	forceInit = false
	require.NoError(t, runInit(nil, nil))
	assert.Error(t, runInit(nil, nil))

	forceInit = true
	defer func() { forceInit = false }()
	assert.NoError(t, runInit(nil, nil))
}

func TestFindConfigWalksUp(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	forceInit = false
	require.NoError(t, runInit(nil, nil))

	nested := filepath.Join(dir, "docs", "deep")
	require.NoError(t, os.MkdirAll(nested, 0755))
	chdir(t, nested)

	path, err := findConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "warren.yml"), path)
}

func TestSyncCreatesPreSyncCheckpoint(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	forceInit = false
	require.NoError(t, runInit(nil, nil))

	syncDirection = "bidirectional"
	syncOutputFormat = "default"
	syncNoCheckpoint = false
	require.NoError(t, runSync(nil, nil))

	entries, err := os.ReadDir(filepath.Join(dir, ".warren", "checkpoints"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The safety checkpoint can be skipped explicitly.
	syncNoCheckpoint = true
	defer func() { syncNoCheckpoint = false }()
	require.NoError(t, runSync(nil, nil))

	entries, err = os.ReadDir(filepath.Join(dir, ".warren", "checkpoints"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenWorkspaceWithoutConfig(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := openWorkspace()
	assert.Error(t, err)
}
