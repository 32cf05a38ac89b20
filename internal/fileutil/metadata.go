package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordingMetadata is the sidecar written alongside each finished recording.
type RecordingMetadata struct {
	Version          string    `json:"version"`
	StreamType       string    `json:"stream_type"`
	StartedAt        time.Time `json:"started_at"`
	StoppedAt        time.Time `json:"stopped_at"`
	Duration         string    `json:"duration"`
	DurationMs       int64     `json:"duration_ms"`
	PausedDurationMs int64     `json:"paused_duration_ms"`
	Container        string    `json:"container,omitempty"`
	VideoCodec       string    `json:"video_codec,omitempty"`
	AudioCodec       string    `json:"audio_codec,omitempty"`
	OutputFiles      []string  `json:"output_files"`
	Aborted          bool      `json:"aborted,omitempty"`
}

// WriteMetadata writes a <basepath>.meta.json sidecar next to the recording.
// The write is atomic (temp + rename) so the UI process never reads a
// partial sidecar.
func WriteMetadata(recordingPath string, meta *RecordingMetadata) error {
	metaPath := metadataPath(recordingPath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// metadataPath returns <basepath>.meta.json for a recording file path.
func metadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	base := recordingPath[:len(recordingPath)-len(ext)]
	return base + ".meta.json"
}
