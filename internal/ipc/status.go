// Package ipc mirrors the recorder's state to the UI process through small
// files under the user cache directory. Writes are atomic so the UI never
// reads a torn snapshot.
package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusSnapshot is the complete pipeline state at a point in time.
type StatusSnapshot struct {
	SessionState   string        `json:"session_state"` // idle|preparing|recording|paused|finalizing|aborted
	StreamType     string        `json:"stream_type,omitempty"`
	OutputPath     string        `json:"output_path,omitempty"`
	Paused         bool          `json:"paused"`
	Muted          bool          `json:"muted"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	PausedDuration time.Duration `json:"paused_duration_ns,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

func cacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "reelcap")
}

// WriteStatus persists the snapshot to ~/.cache/reelcap/status.json.
func WriteStatus(status *StatusSnapshot) error {
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	status.Timestamp = time.Now()
	return atomicWriteJSON(filepath.Join(dir, "status.json"), status)
}

// ReadStatus loads the last written snapshot.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir(), "status.json"))
	if err != nil {
		return nil, err
	}
	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes v to path via temp-file-plus-rename.
func atomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
