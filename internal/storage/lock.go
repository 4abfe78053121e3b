package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the run lock
var ErrLocked = errors.New("another casalert run holds the lock")

// RunLock is the content of the lock file that keeps two runs from appending
// to the same store at once
type RunLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// LockPath returns the lock file path inside dir
func LockPath(dir string) string {
	return filepath.Join(dir, ".casalert.lock")
}

// ErrNotLockHolder is returned when releasing a lock another process holds
var ErrNotLockHolder = errors.New("run lock is held by another process")

// AcquireRunLock creates the lock file at path. Creation is atomic: the lock
// content is written to a temporary file which is then hard-linked into place,
// so at most one caller succeeds and the file is never seen half-written. A
// lock left by a process that is no longer alive is removed once and the
// acquire retried.
func AcquireRunLock(path, holder string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(RunLock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err := createLockFile(path, data)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create run lock: %w", err)
		}

		existing, raw, readErr := readRunLock(path)
		if errors.Is(readErr, fs.ErrNotExist) && attempt == 0 {
			continue
		}
		if readErr == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return fmt.Errorf("%w (%s, PID %d on %s, started %s)", ErrLocked,
				existing.Holder, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		if attempt > 0 {
			return fmt.Errorf("%w (lock file %s could not be replaced)", ErrLocked, path)
		}
		if err := removeStaleLock(path, raw); err != nil {
			return err
		}
	}
}

// createLockFile atomically places data at path, failing with fs.ErrExist if
// a lock is already there
func createLockFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmpPath, path)
}

// readRunLock returns the parsed lock and its raw bytes
func readRunLock(path string) (RunLock, []byte, error) {
	var lock RunLock
	data, err := os.ReadFile(path)
	if err != nil {
		return lock, nil, err
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return lock, data, fmt.Errorf("failed to parse run lock: %w", err)
	}
	return lock, data, nil
}

// removeStaleLock moves the lock aside and deletes it only if it still holds
// the stale content; a lock that was replaced in between is put back
func removeStaleLock(path string, stale []byte) error {
	aside := fmt.Sprintf("%s.stale.%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove stale run lock: %w", err)
	}
	current, err := os.ReadFile(aside)
	if err == nil && !bytes.Equal(current, stale) {
		_ = os.Link(aside, path)
	}
	if err := os.Remove(aside); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale run lock: %w", err)
	}
	return nil
}

// ReleaseRunLock removes the lock file if this process holds it. A missing
// file is not an error; a lock held by anyone else is left in place.
func ReleaseRunLock(path string) error {
	if path == "" {
		return nil
	}
	lock, _, err := readRunLock(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLockHolder, err)
	}
	hostname, _ := os.Hostname()
	if lock.PID != os.Getpid() || !strings.EqualFold(lock.Hostname, hostname) {
		return fmt.Errorf("%w (%s, PID %d on %s)", ErrNotLockHolder, lock.Holder, lock.PID, lock.Hostname)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove run lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid is running. Processes on other hosts,
// and processes we cannot signal, are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists but belongs to another user
	return errors.Is(err, syscall.EPERM)
}
