package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock is a held store-scoped advisory file lock. It serializes every
// mutating operation (update, sync, restore) across independent processes;
// sync and restore of the same store are mutually exclusive because both
// take this lock.
type Lock struct {
	fl *flock.Flock
}

const lockRetryInterval = 50 * time.Millisecond

// Acquire takes the exclusive advisory lock at lockPath, blocking up to
// timeout. On expiry it returns ErrLockTimeout rather than proceeding
// unsafely. Callers must Release on all exit paths.
func Acquire(ctx context.Context, lockPath string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		if lockCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s not acquired within %s", ErrLockTimeout, filepath.Base(lockPath), timeout)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s not acquired within %s", ErrLockTimeout, filepath.Base(lockPath), timeout)
	}

	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call exactly once per Acquire; typically
// deferred immediately after a successful Acquire.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
