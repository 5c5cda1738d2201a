// Package daemon owns the sidecar's single-instance guarantee: a
// flock-backed lock file alongside the discovery files so at most one
// daemon process runs against a given data directory at a time.
package daemon

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = "sidecar.lock"

// InstanceLock guards one daemon invocation against concurrent siblings
// over the same data directory.
type InstanceLock struct {
	flock *flock.Flock
}

// NewInstanceLock builds a lock rooted at dataDir/sidecar.lock.
func NewInstanceLock(dataDir string) *InstanceLock {
	return &InstanceLock{flock: flock.New(filepath.Join(dataDir, lockFileName))}
}

// TryAcquire attempts to take the lock without blocking. false means
// another daemon instance already holds it.
func (l *InstanceLock) TryAcquire() (bool, error) {
	locked, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("daemon: acquire instance lock: %w", err)
	}
	return locked, nil
}

// Release frees the lock; safe to call even if it was never acquired.
func (l *InstanceLock) Release() error {
	if l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
