// Package pidfile prevents two recorder daemons from running at once. A
// second instance would break the one-active-session-per-process guarantee
// and fight over the same output directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is an acquired single-instance lock backed by a file.
type PIDFile struct {
	path string
	pid  int
}

// Acquire claims the PID file at path. It fails when another live process
// holds it; a stale file left by a crashed instance is removed and
// re-claimed.
func Acquire(path string) (*PIDFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if existingPID, err := strconv.Atoi(pidStr); err == nil {
			if isProcessRunning(existingPID) {
				return nil, fmt.Errorf("another instance is already running (PID %d)", existingPID)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("remove stale PID file: %w", err)
			}
		}
	}

	currentPID := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", currentPID)), 0644); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}

	return &PIDFile{path: path, pid: currentPID}, nil
}

// Release deletes the PID file, but only while it still holds our own PID;
// a newer instance's file is left alone.
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	if data, err := os.ReadFile(p.path); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid == p.pid {
			return os.Remove(p.path)
		}
	}
	return nil
}

// isProcessRunning reports whether a process with the given PID exists.
// Signal 0 probes for existence without delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) {
		return false
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

// Path returns the standard PID file location for the named daemon.
func Path(appName string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "reelcap", appName+".pid")
}
