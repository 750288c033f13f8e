// Package store owns on-disk access to the two physical task stores: the
// monolithic document and the directory of per-task documents. Each store is
// the sole owner of its bytes; all other components go through this package.
//
// Every mutating operation must hold the store-scoped advisory lock (see
// lock.go). Writes are atomic (write-to-temp, then rename) so readers never
// observe a torn document.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

var (
	// ErrNotFound is returned when a task does not exist in the store.
	ErrNotFound = errors.New("task not found")

	// ErrLockTimeout is returned when the store lock could not be acquired
	// within the configured timeout. Retryable by the caller; the core never
	// retries lock acquisition itself.
	ErrLockTimeout = errors.New("store lock timeout")

	// ErrTransientReadConflict is returned when a read saw a checksum
	// mismatch twice in a row, indicating a write-in-progress that outlasted
	// the retry window. Retryable by the caller.
	ErrTransientReadConflict = errors.New("transient read conflict")

	// ErrChecksumMismatch is returned when a document's recorded checksum
	// does not match its recomputed content checksum, signalling external
	// tampering or a missed sync. Never silently proceeded past.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Store is the surface the checkpoint manager needs: a named collection of
// raw files that can be captured and restored wholesale.
type Store interface {
	// Name identifies the store: "monolith" or "distributed".
	Name() string

	// Snapshot returns every file the store owns, keyed by store-relative
	// path. A missing store yields an empty map, not an error.
	Snapshot() (map[string][]byte, error)

	// RestoreSnapshot replaces the store's content with the snapshot,
	// removing files not present in it. Caller must hold the store lock.
	RestoreSnapshot(files map[string][]byte) error
}

// writeFileAtomic writes data via a temp file and rename so a crash mid-write
// never leaves a half-written document.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
