package testutil

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// LogCapture captures slog output for testing
type LogCapture struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	original *slog.Logger
}

// NewLogCapture creates a new log capture instance
func NewLogCapture() *LogCapture {
	return &LogCapture{original: slog.Default()}
}

// Start redirects the default slog logger into the capture buffer
func (lc *LogCapture) Start() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	handler := slog.NewTextHandler(&syncWriter{lc: lc}, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
}

// Stop restores the original default logger
func (lc *LogCapture) Stop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	slog.SetDefault(lc.original)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return strings.Contains(lc.buf.String(), substr)
}

// NotContains checks if the log output does NOT contain the given substring
func (lc *LogCapture) NotContains(substr string) bool {
	return !lc.Contains(substr)
}

// Count returns the number of times a substring appears in the log
func (lc *LogCapture) Count(substr string) int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return strings.Count(lc.buf.String(), substr)
}

// Lines returns all captured log lines
func (lc *LogCapture) Lines() []string {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	content := strings.TrimSpace(lc.buf.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

// syncWriter serialises handler writes into the capture buffer. The handler
// may be called from goroutines the test does not control.
type syncWriter struct {
	lc *LogCapture
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.lc.mu.Lock()
	defer w.lc.mu.Unlock()
	return w.lc.buf.Write(p)
}
