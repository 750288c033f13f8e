// Package config loads and validates the warren.yml workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which store(s) the query router operates over.
type Mode string

const (
	// ModeMonolith serves all reads and writes from the monolithic document.
	ModeMonolith Mode = "monolith"

	// ModeDistributed serves all reads and writes from per-task documents.
	ModeDistributed Mode = "distributed"

	// ModeHybrid reads from the distributed store and falls back to the
	// monolith on a missing entity; writes go to the distributed store.
	ModeHybrid Mode = "hybrid"
)

// Validate checks if the Mode is a valid enum value.
func (m Mode) Validate() error {
	switch m {
	case ModeMonolith, ModeDistributed, ModeHybrid:
		return nil
	default:
		return fmt.Errorf("unknown mode: %q (must be 'monolith', 'distributed', or 'hybrid')", m)
	}
}

// Config represents the top-level warren.yml configuration.
type Config struct {
	Version     string            `yaml:"version"`
	Mode        Mode              `yaml:"mode"`
	Stores      StoresConfig      `yaml:"stores"`
	Sync        SyncConfig        `yaml:"sync,omitempty"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints,omitempty"`
	Checks      ValidateConfig    `yaml:"validate,omitempty"`
	Redis       *RedisConfig      `yaml:"redis,omitempty"`

	// Workspace root, set by Load from the config file's location.
	Root string `yaml:"-"`
}

// StoresConfig locates the two physical stores, relative to the workspace root.
type StoresConfig struct {
	Monolith    string `yaml:"monolith"`    // Path to the monolithic document
	Distributed string `yaml:"distributed"` // Directory of per-task documents
}

// SyncConfig tunes locking and the migration-phase tag stamped into sync metadata.
type SyncConfig struct {
	LockTimeout    time.Duration `yaml:"lock_timeout,omitempty"`     // Max wait for a store lock (default 5s)
	ReadRetryDelay time.Duration `yaml:"read_retry_delay,omitempty"` // Delay before the single mid-write read retry (default 100ms)
	Phase          string        `yaml:"phase,omitempty"`            // Migration-phase tag (default "migration")
}

// UnmarshalYAML decodes durations from their human form ("5s", "100ms").
func (s *SyncConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LockTimeout    string `yaml:"lock_timeout"`
		ReadRetryDelay string `yaml:"read_retry_delay"`
		Phase          string `yaml:"phase"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Phase = raw.Phase
	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return fmt.Errorf("invalid sync.lock_timeout %q: %w", raw.LockTimeout, err)
		}
		s.LockTimeout = d
	}
	if raw.ReadRetryDelay != "" {
		d, err := time.ParseDuration(raw.ReadRetryDelay)
		if err != nil {
			return fmt.Errorf("invalid sync.read_retry_delay %q: %w", raw.ReadRetryDelay, err)
		}
		s.ReadRetryDelay = d
	}
	return nil
}

// CheckpointsConfig controls checkpoint retention.
type CheckpointsConfig struct {
	Keep int `yaml:"keep,omitempty"` // Checkpoints retained before pruning oldest-first (default 10)
}

// ValidateConfig tunes the integrity validator.
type ValidateConfig struct {
	RoundTripSample int `yaml:"round_trip_sample,omitempty"` // Entities sampled for round-trip checks, 0 = all
}

// RedisConfig enables the sync-request queue when an address is set.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Workspace string `yaml:"workspace,omitempty"` // Namespace for queue keys (default: workspace dir name)
}

// DefaultFileName is the workspace configuration file name.
const DefaultFileName = "warren.yml"

// Validate performs strict validation and applies defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if err := c.Mode.Validate(); err != nil {
		return err
	}
	if c.Stores.Monolith == "" {
		return fmt.Errorf("stores.monolith is required")
	}
	if c.Stores.Distributed == "" {
		return fmt.Errorf("stores.distributed is required")
	}

	if c.Sync.LockTimeout == 0 {
		c.Sync.LockTimeout = 5 * time.Second
	}
	if c.Sync.LockTimeout < 0 {
		return fmt.Errorf("sync.lock_timeout must be positive, got %s", c.Sync.LockTimeout)
	}
	if c.Sync.ReadRetryDelay == 0 {
		c.Sync.ReadRetryDelay = 100 * time.Millisecond
	}
	if c.Sync.Phase == "" {
		c.Sync.Phase = "migration"
	}

	if c.Checkpoints.Keep == 0 {
		c.Checkpoints.Keep = 10
	}
	if c.Checkpoints.Keep < 1 {
		return fmt.Errorf("checkpoints.keep must be >= 1, got %d", c.Checkpoints.Keep)
	}
	if c.Checks.RoundTripSample < 0 {
		return fmt.Errorf("validate.round_trip_sample must be >= 0, got %d", c.Checks.RoundTripSample)
	}

	if c.Redis != nil {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when the redis block is present")
		}
		if c.Redis.Workspace == "" {
			c.Redis.Workspace = filepath.Base(c.Root)
		}
	}

	return nil
}

// MonolithPath returns the absolute path of the monolithic document.
func (c *Config) MonolithPath() string {
	return filepath.Join(c.Root, c.Stores.Monolith)
}

// DistributedPath returns the absolute path of the per-task document directory.
func (c *Config) DistributedPath() string {
	return filepath.Join(c.Root, c.Stores.Distributed)
}

// StateDir returns the .warren state directory (sync state, locks, checkpoints).
func (c *Config) StateDir() string {
	return filepath.Join(c.Root, ".warren")
}

// Load reads and validates warren.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	config.Root = abs

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
