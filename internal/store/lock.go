package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteLockName is the lock file created inside a keyword index directory.
const WriteLockName = ".write.lock"

// FileLock provides cross-process file locking around index writes.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock file handle in dir. The directory is created if needed.
func NewFileLock(dir string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	lockPath := filepath.Join(dir, WriteLockName)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}, nil
}

// Lock acquires an exclusive lock, blocking until available.
func (l *FileLock) Lock() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	locked, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %s: %w", l.path, err)
	}
	l.locked = locked
	return locked, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}

// Locked reports whether this handle currently holds the lock.
func (l *FileLock) Locked() bool {
	return l.locked
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}
