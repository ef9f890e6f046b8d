// Package lockfile serializes read-modify-write cycles on the planner's
// state files across concurrent CLI processes.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockBusy is returned by TryAcquire when another process holds the lock.
var ErrLockBusy = errors.New("lock is held by another process")

// Lock is an exclusive advisory lock on a sidecar file.
type Lock struct {
	f *os.File
}

// PathFor returns the sidecar lock path guarding target.
func PathFor(target string) string {
	return target + ".lock"
}

// Acquire blocks until it holds the exclusive lock for target.
func Acquire(target string) (*Lock, error) {
	f, err := open(target)
	if err != nil {
		return nil, err
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", f.Name(), err)
	}
	return &Lock{f: f}, nil
}

// TryAcquire takes the lock for target without waiting. It returns
// ErrLockBusy when the lock is taken.
func TryAcquire(target string) (*Lock, error) {
	f, err := open(target)
	if err != nil {
		return nil, err
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. The sidecar file is left in place so that every
// process keeps locking the same inode.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	uerr := flockUnlock(l.f)
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(uerr, cerr)
}

// With runs fn while holding the lock for target.
func With(target string, fn func() error) error {
	l, err := Acquire(target)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}

func open(target string) (*os.File, error) {
	path := PathFor(target)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return f, nil
}
