package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesCurrentPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pf.Release()

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("read PID file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("invalid PID in file: %s", data)
	}
	if pid != os.Getpid() {
		t.Errorf("PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireRejectsSecondInstance(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf1, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer pf1.Release()

	if _, err := Acquire(pidPath); err == nil {
		t.Error("expected error acquiring a held PID file, got nil")
	} else if !strings.Contains(err.Error(), "already running") {
		t.Errorf("expected 'already running' error, got: %v", err)
	}
}

func TestAcquireReclaimsStaleFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	if err := os.WriteFile(pidPath, []byte("99999\n"), 0644); err != nil {
		t.Fatalf("seed stale PID file: %v", err)
	}

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire after stale file: %v", err)
	}
	defer pf.Release()

	data, _ := os.ReadFile(pidPath)
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	if pid != os.Getpid() {
		t.Errorf("PID mismatch after stale reclaim: got %d, want %d", pid, os.Getpid())
	}
}

func TestRelease(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := pf.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after Release")
	}
}

func TestReleaseLeavesForeignPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	foreign := os.Getpid() + 1
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(foreign)+"\n"), 0644); err != nil {
		t.Fatalf("overwrite PID file: %v", err)
	}

	_ = pf.Release()

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatal("PID file was removed even though it held a different PID")
	}
	if pid, _ := strconv.Atoi(strings.TrimSpace(string(data))); pid != foreign {
		t.Errorf("PID changed unexpectedly: got %d, want %d", pid, foreign)
	}
}

func TestPath(t *testing.T) {
	want := filepath.Join(os.Getenv("HOME"), ".cache", "reelcap", "core.pid")
	if got := Path("core"); got != want {
		t.Errorf("Path: got %s, want %s", got, want)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be detected as running")
	}
	if isProcessRunning(99999) {
		t.Error("non-existent process should not be detected as running")
	}
}
