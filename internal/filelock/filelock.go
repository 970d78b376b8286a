// Package filelock provides advisory file locking for coordinating
// concurrent access to a store directory and the journal.
package filelock

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	lockFileMode = 0o600
	lockDirMode  = 0o750
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock acquires an exclusive advisory lock on the file at path, creating
// it and its parent directory if needed. It blocks until the lock is free.
// The returned function releases the lock.
func Lock(path string) (unlock func() error, err error) {
	return acquire(path, lockFile)
}

// TryLock is Lock without waiting: it fails with ErrLocked when the lock
// is already held.
func TryLock(path string) (unlock func() error, err error) {
	return acquire(path, tryLockFile)
}

func acquire(path string, lock func(*os.File) error) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), lockDirMode); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFileMode) //nolint:gosec // lock file path from trusted source
	if err != nil {
		return nil, err
	}

	if err := lock(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() error {
		unlockErr := unlockFile(f)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}
