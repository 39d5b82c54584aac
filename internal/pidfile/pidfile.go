// Package pidfile keeps a single monitor instance per control directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrRunning is returned by New when another process holds the lock.
var ErrRunning = errors.New("another instance is already running")

// PIDFile is a locked file holding the owner's PID. The lock is released
// by the kernel if the process dies, so a stale file never blocks a new
// instance.
type PIDFile struct {
	path string
	pid  int
	lock *flock.Flock
}

// New locks path and writes the current PID into it.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		if pid, err := Read(path); err == nil {
			return nil, fmt.Errorf("%w (PID %d)", ErrRunning, pid)
		}
		return nil, ErrRunning
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: pid, lock: lock}, nil
}

// Remove deletes the file and releases the lock.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	// Only remove if it still contains our PID
	if pid, err := Read(p.path); err == nil && pid == p.pid {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			_ = p.lock.Unlock()
			return err
		}
	}
	return p.lock.Unlock()
}

// Read returns the PID stored in path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}

// Running reports whether some process currently holds the lock on path.
func Running(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}

// Path returns the PID file location inside the control dir.
func Path(controlDir string) string {
	return filepath.Join(controlDir, "whispersub.pid")
}
