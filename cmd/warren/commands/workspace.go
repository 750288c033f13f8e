package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/queue"
	"github.com/dyluth/warren/internal/store"
)

// workspace bundles everything a command needs: the loaded configuration,
// both stores, the optional queue client, and the engine logger.
type workspace struct {
	cfg    *config.Config
	mono   *store.Monolith
	dist   *store.Distributed
	queue  *queue.Client // nil when no Redis is configured
	logger zerolog.Logger
}

// openWorkspace locates warren.yml (current directory, then ancestors, like
// git does with .git) and wires up the stores.
func openWorkspace() (*workspace, error) {
	path, err := findConfig()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	lockDir := filepath.Join(cfg.StateDir(), "locks")
	ws := &workspace{
		cfg:    cfg,
		mono:   store.NewMonolith(cfg.MonolithPath(), lockDir, cfg.Sync.LockTimeout),
		dist:   store.NewDistributed(cfg.DistributedPath(), lockDir, cfg.Sync.LockTimeout, cfg.Sync.ReadRetryDelay),
		logger: newLogger(),
	}

	if cfg.Redis != nil {
		q, err := queue.New(&redis.Options{Addr: cfg.Redis.Addr}, cfg.Redis.Workspace)
		if err != nil {
			return nil, err
		}
		ws.queue = q
	}
	return ws, nil
}

// Close releases workspace resources. Safe on a partially built workspace.
func (ws *workspace) Close() {
	if ws.queue != nil {
		ws.queue.Close()
	}
}

// statePath is where the syncer records last-sync checksums.
func (ws *workspace) statePath() string {
	return filepath.Join(ws.cfg.StateDir(), "syncstate.yaml")
}

// checkpointDir is the root of the checkpoint namespace.
func (ws *workspace) checkpointDir() string {
	return filepath.Join(ws.cfg.StateDir(), "checkpoints")
}

// findConfig walks from the current directory toward the filesystem root
// looking for warren.yml.
func findConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, config.DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", printer.Error(
		"no Warren workspace found",
		fmt.Sprintf("No %s in this directory or any parent.", config.DefaultFileName),
		[]string{"Initialize a workspace first:\n  warren init"},
	)
}
