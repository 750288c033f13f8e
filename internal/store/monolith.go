package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/warren/internal/codec"
	"github.com/dyluth/warren/pkg/task"
)

// Monolith is the single-file store holding every task record in one
// structured document.
type Monolith struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
}

// NewMonolith creates a monolith store backed by the document at path.
// lockDir holds the store-scoped advisory lock file.
func NewMonolith(path, lockDir string, lockTimeout time.Duration) *Monolith {
	return &Monolith{
		path:        path,
		lockPath:    filepath.Join(lockDir, "monolith.lock"),
		lockTimeout: lockTimeout,
	}
}

// Name implements Store.
func (m *Monolith) Name() string { return "monolith" }

// Path returns the document's path on disk.
func (m *Monolith) Path() string { return m.path }

// Lock acquires the store's exclusive advisory lock.
func (m *Monolith) Lock(ctx context.Context) (*Lock, error) {
	return Acquire(ctx, m.lockPath, m.lockTimeout)
}

// ReadRaw returns the document's current bytes. A missing document is an
// empty store, not an error.
func (m *Monolith) ReadRaw() ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monolith: %w", err)
	}
	return data, nil
}

// WriteRaw atomically replaces the document's bytes. Caller must hold the
// store lock.
func (m *Monolith) WriteRaw(data []byte) error {
	return writeFileAtomic(m.path, data)
}

// Load parses the whole document. Parse defects come back alongside the
// best-effort entities; only I/O failures are errors.
func (m *Monolith) Load() ([]*task.Task, []codec.ParseError, error) {
	data, err := m.ReadRaw()
	if err != nil {
		return nil, nil, err
	}
	tasks, errs := codec.ParseMonolith(data)
	return tasks, errs, nil
}

// LoadTask returns a single task by ID, or ErrNotFound.
func (m *Monolith) LoadTask(id string) (*task.Task, []codec.ParseError, error) {
	tasks, errs, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, errs, nil
		}
	}
	return nil, errs, fmt.Errorf("%s in monolith: %w", id, ErrNotFound)
}

// WriteTask replaces (or appends) one task and rewrites the document. The
// rewrite is atomic: the document is fully replaced or left untouched.
// Caller must hold the store lock.
func (m *Monolith) WriteTask(t *task.Task) error {
	tasks, _, err := m.Load()
	if err != nil {
		return err
	}

	// Monolith records never carry sync metadata; that belongs to the
	// distributed dialect.
	clean := t.Clone()
	clean.Meta = nil

	replaced := false
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = clean
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, clean)
	}

	return m.WriteRaw(codec.RenderMonolith(tasks))
}

// DeleteTask removes one task and rewrites the document. Deleting a task
// that is not present is a no-op. Caller must hold the store lock.
func (m *Monolith) DeleteTask(id string) error {
	tasks, _, err := m.Load()
	if err != nil {
		return err
	}

	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tasks) {
		return nil
	}
	return m.WriteRaw(codec.RenderMonolith(kept))
}

// Snapshot implements Store.
func (m *Monolith) Snapshot() (map[string][]byte, error) {
	data, err := m.ReadRaw()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return map[string][]byte{}, nil
	}
	return map[string][]byte{filepath.Base(m.path): data}, nil
}

// RestoreSnapshot implements Store.
func (m *Monolith) RestoreSnapshot(files map[string][]byte) error {
	data, ok := files[filepath.Base(m.path)]
	if !ok {
		// Snapshot taken when the store did not exist yet.
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove monolith during restore: %w", err)
		}
		return nil
	}
	return m.WriteRaw(data)
}
