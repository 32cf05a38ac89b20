package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reelcap/reelcap/testutil"
)

func TestWatchDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("frame_rate: 60\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got *Settings
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		_ = Watch(path, func(s Settings) {
			mu.Lock()
			got = &s
			mu.Unlock()
		}, stop)
	}()

	// Give the watcher time to attach before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("frame_rate: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.FrameRate == 30
	}, 3*time.Second, 50*time.Millisecond, "reload delivered")
}

func TestWatchSkipsInvalidIntermediateState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("frame_rate: 60\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		_ = Watch(path, func(Settings) {
			mu.Lock()
			calls++
			mu.Unlock()
		}, stop)
	}()

	time.Sleep(100 * time.Millisecond)
	// Invalid settings must not reach onChange.
	if err := os.WriteFile(path, []byte("container: avi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, 0, calls, "invalid reload skipped")
}
