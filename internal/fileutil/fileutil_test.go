package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelcap/reelcap/testutil"
)

func TestSanitizeForFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Screen", "Screen"},
		{"", "Recording"},
		{"a/b\\c:d", "a-b-c-d"},
		{"My  Meeting   Notes", "My-Meeting-Notes"},
		{"???", "Recording"},
	}
	for _, tc := range cases {
		testutil.AssertEqual(t, tc.want, SanitizeForFilename(tc.in), "sanitize "+tc.in)
	}
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefgh"
	}
	out := SanitizeForFilename(long)
	testutil.AssertTrue(t, len(out) <= 50, "truncated to filesystem-safe length")
}

func TestRecordingName(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	testutil.AssertEqual(t, "Screen-2026-01-02_15.04.05", RecordingName("Screen", now), "stamped name")
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.mp4")

	testutil.AssertEqual(t, path, UniquePath(path), "free path unchanged")

	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, filepath.Join(dir, "rec_2.mp4"), UniquePath(path), "first numbered variant")

	if err := os.WriteFile(filepath.Join(dir, "rec_2.mp4"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, filepath.Join(dir, "rec_3.mp4"), UniquePath(path), "second numbered variant")
}

func TestWriteMetadataSidecar(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "Screen-2026-01-02_15.04.05.mp4")

	meta := &RecordingMetadata{
		Version:     "1",
		StreamType:  "screen",
		StartedAt:   time.Now().Add(-time.Minute),
		StoppedAt:   time.Now(),
		DurationMs:  60000,
		Container:   "mp4",
		VideoCodec:  "h264",
		OutputFiles: []string{recording},
	}
	testutil.AssertNoError(t, WriteMetadata(recording, meta), "write sidecar")

	sidecar := filepath.Join(dir, "Screen-2026-01-02_15.04.05.meta.json")
	data, err := os.ReadFile(sidecar)
	testutil.AssertNoError(t, err, "sidecar exists next to the recording")

	var got RecordingMetadata
	testutil.AssertNoError(t, json.Unmarshal(data, &got), "sidecar is valid JSON")
	testutil.AssertEqual(t, "screen", got.StreamType, "stream type round trip")
	testutil.AssertEqual(t, int64(60000), got.DurationMs, "duration round trip")
	testutil.AssertFalse(t, got.Aborted, "clean finish")
}

func TestWriteMetadataLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "rec.mp4")
	testutil.AssertNoError(t, WriteMetadata(recording, &RecordingMetadata{Version: "1"}), "write")

	entries, err := os.ReadDir(dir)
	testutil.AssertNoError(t, err, "read dir")
	testutil.AssertEqual(t, 1, len(entries), "only the sidecar remains")
	testutil.AssertEqual(t, "rec.meta.json", entries[0].Name(), "sidecar name")
}
