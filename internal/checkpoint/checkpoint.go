// Package checkpoint captures and restores point-in-time snapshots of both
// task stores.
//
// A checkpoint is a directory under the workspace state dir holding the raw
// bytes of every store document plus a metadata record with an aggregate
// checksum. Restore verifies that checksum before touching anything: a
// corrupted checkpoint fails closed and the live stores are left untouched.
package checkpoint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/warren/internal/codec"
	"github.com/dyluth/warren/internal/store"
)

var (
	// ErrCheckpointNotFound is returned when the named checkpoint does not exist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrRollbackFailure is returned when a restore failed partway. The
	// stores may be inconsistent and need manual attention.
	ErrRollbackFailure = errors.New("rollback failure")
)

const metadataFile = "metadata.yaml"

// Metadata describes one checkpoint.
type Metadata struct {
	ID            string    `yaml:"id" json:"id"`
	Label         string    `yaml:"label" json:"label"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
	Checksum      string    `yaml:"checksum" json:"checksum"` // Aggregate over every captured document
	EntityCount   int       `yaml:"entity_count" json:"entity_count"`
	SchemaVersion int       `yaml:"schema_version" json:"schema_version"` // Highest distributed schema version captured
}

// Manager creates, lists, restores, and prunes checkpoints.
type Manager struct {
	dir    string // checkpoint root, e.g. <workspace>/.warren/checkpoints
	keep   int    // checkpoints retained after a Create; <= 0 disables pruning
	mono   *store.Monolith
	dist   *store.Distributed
	logger zerolog.Logger
}

// New creates a checkpoint manager rooted at dir. keep is the retention
// count enforced on every Create, oldest checkpoints pruned first.
func New(dir string, keep int, mono *store.Monolith, dist *store.Distributed, logger zerolog.Logger) *Manager {
	return &Manager{dir: dir, keep: keep, mono: mono, dist: dist, logger: logger}
}

// Create captures both stores into a new checkpoint and returns its
// metadata. The stores are locked for the duration of the capture so the
// snapshot is a consistent point in time. Retention is enforced after the
// capture: checkpoints beyond the keep count are pruned oldest-first.
func (m *Manager) Create(ctx context.Context, label string) (*Metadata, error) {
	monoLock, err := m.mono.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock monolith store: %w", err)
	}
	defer monoLock.Release()

	distLock, err := m.dist.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock distributed store: %w", err)
	}
	defer distLock.Release()

	monoFiles, err := m.mono.Snapshot()
	if err != nil {
		return nil, err
	}
	distFiles, err := m.dist.Snapshot()
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		ID:        uuid.New().String(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Checksum:  aggregateChecksum(monoFiles, distFiles),
	}
	meta.EntityCount, meta.SchemaVersion = m.census(monoFiles, distFiles)

	dir := filepath.Join(m.dir, meta.ID)
	if err := writeSnapshotDir(filepath.Join(dir, "monolith"), monoFiles); err != nil {
		return nil, err
	}
	if err := writeSnapshotDir(filepath.Join(dir, "distributed"), distFiles); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint metadata: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(dir, metadataFile), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint metadata: %w", err)
	}

	m.logger.Info().
		Str("checkpoint_id", meta.ID).
		Str("label", label).
		Int("entities", meta.EntityCount).
		Msg("checkpoint created")

	if m.keep > 0 {
		removed, err := m.Prune(m.keep)
		if err != nil {
			// The checkpoint itself is safe; retention catches up next time.
			m.logger.Warn().Err(err).Msg("failed to prune old checkpoints")
		} else if len(removed) > 0 {
			m.logger.Info().Int("pruned", len(removed)).Msg("retention enforced")
		}
	}
	return meta, nil
}

// Restore replaces both stores' content with a checkpoint's captured bytes.
//
// The checkpoint's aggregate checksum is recomputed from the captured files
// first; any mismatch aborts before the live stores are touched. A failure
// after the first store write returns ErrRollbackFailure because the stores
// may no longer agree with each other.
//
// Restored documents keep the schema versions they were captured with; the
// next update supersedes them.
func (m *Manager) Restore(ctx context.Context, id string) (*Metadata, error) {
	meta, err := m.load(id)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.dir, id)
	monoFiles, err := readSnapshotDir(filepath.Join(dir, "monolith"))
	if err != nil {
		return nil, err
	}
	distFiles, err := readSnapshotDir(filepath.Join(dir, "distributed"))
	if err != nil {
		return nil, err
	}

	if sum := aggregateChecksum(monoFiles, distFiles); sum != meta.Checksum {
		return nil, fmt.Errorf("checkpoint %s is corrupt: recorded checksum %s, recomputed %s",
			id, meta.Checksum, sum)
	}

	monoLock, err := m.mono.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock monolith store: %w", err)
	}
	defer monoLock.Release()

	distLock, err := m.dist.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock distributed store: %w", err)
	}
	defer distLock.Release()

	if err := m.mono.RestoreSnapshot(monoFiles); err != nil {
		return nil, fmt.Errorf("%w: monolith restore from %s: %v", ErrRollbackFailure, id, err)
	}
	if err := m.dist.RestoreSnapshot(distFiles); err != nil {
		return nil, fmt.Errorf("%w: distributed restore from %s: %v", ErrRollbackFailure, id, err)
	}

	m.logger.Info().
		Str("checkpoint_id", id).
		Str("label", meta.Label).
		Msg("checkpoint restored")
	return meta, nil
}

// List returns every checkpoint's metadata, newest first.
func (m *Manager) List() ([]*Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var metas []*Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.load(e.Name())
		if err != nil {
			// A half-written checkpoint dir is skipped, not fatal.
			m.logger.Warn().Str("checkpoint_id", e.Name()).Err(err).Msg("skipping unreadable checkpoint")
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

// Prune deletes all but the newest keepLastN checkpoints and returns the
// metadata of those removed.
func (m *Manager) Prune(keepLastN int) ([]*Metadata, error) {
	if keepLastN < 0 {
		return nil, fmt.Errorf("keepLastN must be >= 0, got %d", keepLastN)
	}
	metas, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(metas) <= keepLastN {
		return nil, nil
	}

	var removed []*Metadata
	for _, meta := range metas[keepLastN:] {
		if err := os.RemoveAll(filepath.Join(m.dir, meta.ID)); err != nil {
			return removed, fmt.Errorf("failed to prune checkpoint %s: %w", meta.ID, err)
		}
		removed = append(removed, meta)
	}
	return removed, nil
}

func (m *Manager) load(id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id, metadataFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", id, ErrCheckpointNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint metadata: %w", err)
	}
	return &meta, nil
}

// census counts entities and finds the highest distributed schema version
// in the captured bytes.
func (m *Manager) census(monoFiles, distFiles map[string][]byte) (entities, schemaVersion int) {
	for _, data := range monoFiles {
		tasks, _ := codec.ParseMonolith(data)
		entities += len(tasks)
	}
	for _, data := range distFiles {
		entities++
		t, _ := codec.ParseEntity(data)
		if t.Meta != nil && t.Meta.SchemaVersion > schemaVersion {
			schemaVersion = t.Meta.SchemaVersion
		}
	}
	return entities, schemaVersion
}

// aggregateChecksum hashes every captured document in a deterministic order.
// Filenames participate so a renamed document changes the checksum.
func aggregateChecksum(monoFiles, distFiles map[string][]byte) string {
	h := sha256.New()
	for _, group := range []struct {
		prefix string
		files  map[string][]byte
	}{
		{"monolith", monoFiles},
		{"distributed", distFiles},
	} {
		names := make([]string, 0, len(group.files))
		for name := range group.files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(h, "%s/%s\n%d\n", group.prefix, name, len(group.files[name]))
			h.Write(group.files[name])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeSnapshotDir(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	for name, data := range files {
		if err := atomic.WriteFile(filepath.Join(dir, name), bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to write checkpoint file %s: %w", name, err)
		}
	}
	return nil
}

func readSnapshotDir(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint file %s: %w", e.Name(), err)
		}
		files[e.Name()] = data
	}
	return files, nil
}
