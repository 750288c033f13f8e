package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/warren/internal/codec"
	"github.com/dyluth/warren/pkg/task"
)

// Distributed is the per-entity store: one document per task, named
// <task_id>.md, in a flat directory.
type Distributed struct {
	dir            string
	lockPath       string
	lockTimeout    time.Duration
	readRetryDelay time.Duration
}

const entityExt = ".md"

// NewDistributed creates a distributed store over dir.
func NewDistributed(dir, lockDir string, lockTimeout, readRetryDelay time.Duration) *Distributed {
	return &Distributed{
		dir:            dir,
		lockPath:       filepath.Join(lockDir, "distributed.lock"),
		lockTimeout:    lockTimeout,
		readRetryDelay: readRetryDelay,
	}
}

// Name implements Store.
func (d *Distributed) Name() string { return "distributed" }

// Dir returns the store's directory on disk.
func (d *Distributed) Dir() string { return d.dir }

// Lock acquires the store's exclusive advisory lock.
func (d *Distributed) Lock(ctx context.Context) (*Lock, error) {
	return Acquire(ctx, d.lockPath, d.lockTimeout)
}

func (d *Distributed) taskPath(id string) string {
	return filepath.Join(d.dir, id+entityExt)
}

// List returns the IDs of every task document in the store, sorted.
func (d *Distributed) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list distributed store: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entityExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), entityExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadTask reads and parses one task document. Returns ErrNotFound when the
// document does not exist. The document's stored checksum is NOT verified
// here; use LoadTaskVerified on read paths that must detect tampering.
func (d *Distributed) LoadTask(id string) (*task.Task, []codec.ParseError, error) {
	data, err := os.ReadFile(d.taskPath(id))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%s in distributed store: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read task %s: %w", id, err)
	}
	t, errs := codec.ParseEntity(data)
	return t, errs, nil
}

// LoadTaskVerified reads one task and verifies its sync-metadata checksum
// against the recomputed content checksum. A mismatch is retried once after
// the configured delay, to tolerate reading mid-write; a second mismatch
// returns ErrTransientReadConflict wrapping ErrChecksumMismatch detail.
func (d *Distributed) LoadTaskVerified(ctx context.Context, id string) (*task.Task, []codec.ParseError, error) {
	t, errs, err := d.loadVerifiedOnce(id)
	if err == nil || !errors.Is(err, ErrChecksumMismatch) {
		return t, errs, err
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-time.After(d.readRetryDelay):
	}

	t, errs, err = d.loadVerifiedOnce(id)
	if err != nil && errors.Is(err, ErrChecksumMismatch) {
		return nil, nil, fmt.Errorf("%w: task %s still mismatched after retry", ErrTransientReadConflict, id)
	}
	return t, errs, err
}

func (d *Distributed) loadVerifiedOnce(id string) (*task.Task, []codec.ParseError, error) {
	t, errs, err := d.LoadTask(id)
	if err != nil {
		return nil, nil, err
	}
	if t.Meta != nil {
		sum, err := task.Checksum(t)
		if err != nil {
			return nil, nil, err
		}
		if sum != t.Meta.Checksum {
			return nil, nil, fmt.Errorf("%w: task %s recorded %s, recomputed %s",
				ErrChecksumMismatch, id, t.Meta.Checksum, sum)
		}
	}
	return t, errs, nil
}

// LoadAll parses every document in the store. Parse defects are collected
// per document; only I/O failures abort.
func (d *Distributed) LoadAll() ([]*task.Task, []codec.ParseError, error) {
	ids, err := d.List()
	if err != nil {
		return nil, nil, err
	}

	var (
		tasks   []*task.Task
		allErrs []codec.ParseError
	)
	for _, id := range ids {
		t, errs, err := d.LoadTask(id)
		if err != nil {
			return nil, nil, err
		}
		// The filename is the store's ID authority; a partial entity whose
		// front matter did not yield an ID still keys by it.
		if t.ID == "" {
			t.ID = id
		}
		for _, pe := range errs {
			if pe.TaskID == "" {
				pe.TaskID = id
			}
			allErrs = append(allErrs, pe)
		}
		tasks = append(tasks, t)
	}
	return tasks, allErrs, nil
}

// WriteTask atomically writes one task's document. Caller must hold the
// store lock and have populated sync metadata.
func (d *Distributed) WriteTask(t *task.Task) error {
	data, err := codec.RenderEntity(t)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.taskPath(t.ID), data)
}

// DeleteTask removes one task document. Deleting a missing document is a
// no-op. Caller must hold the store lock.
func (d *Distributed) DeleteTask(id string) error {
	return d.WriteRawTask(id, nil)
}

// ReadRawTask returns one document's current bytes, for pre-write capture.
func (d *Distributed) ReadRawTask(id string) ([]byte, error) {
	data, err := os.ReadFile(d.taskPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// WriteRawTask atomically writes raw bytes for one task, or deletes the
// document when data is nil. Used by the syncer's single-task rollback.
func (d *Distributed) WriteRawTask(id string, data []byte) error {
	if data == nil {
		if err := os.Remove(d.taskPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove task %s: %w", id, err)
		}
		return nil
	}
	return writeFileAtomic(d.taskPath(id), data)
}

// Snapshot implements Store.
func (d *Distributed) Snapshot() (map[string][]byte, error) {
	ids, err := d.List()
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(d.taskPath(id))
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot task %s: %w", id, err)
		}
		files[id+entityExt] = data
	}
	return files, nil
}

// RestoreSnapshot implements Store. The restored document set is staged in
// a sibling directory and swapped into place with two renames. A crash
// mid-restore leaves either the old store or the new one, never a mix of
// documents from both.
func (d *Distributed) RestoreSnapshot(files map[string][]byte) error {
	stage := d.dir + ".restore"
	prior := d.dir + ".prior"

	if err := os.RemoveAll(stage); err != nil {
		return fmt.Errorf("failed to clear restore staging directory: %w", err)
	}
	if err := os.RemoveAll(prior); err != nil {
		return fmt.Errorf("failed to clear stale restore directory: %w", err)
	}
	if err := os.MkdirAll(stage, 0755); err != nil {
		return fmt.Errorf("failed to create restore staging directory: %w", err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(stage, name), data, 0644); err != nil {
			os.RemoveAll(stage)
			return fmt.Errorf("failed to stage document %s during restore: %w", name, err)
		}
	}

	liveExists := true
	if _, err := os.Stat(d.dir); os.IsNotExist(err) {
		liveExists = false
	}
	if liveExists {
		if err := os.Rename(d.dir, prior); err != nil {
			os.RemoveAll(stage)
			return fmt.Errorf("failed to move live store aside during restore: %w", err)
		}
	}
	if err := os.Rename(stage, d.dir); err != nil {
		if liveExists {
			os.Rename(prior, d.dir)
		}
		return fmt.Errorf("failed to swap restored store into place: %w", err)
	}
	if err := os.RemoveAll(prior); err != nil {
		return fmt.Errorf("failed to remove pre-restore store: %w", err)
	}
	return nil
}
