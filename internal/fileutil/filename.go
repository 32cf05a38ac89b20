// Package fileutil provides recording file naming and sidecar utilities.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// timestampLayout is the ISO-ish stamp embedded in recording names.
const timestampLayout = "2006-01-02_15.04.05"

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	collapseRuns = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename makes a string safe to embed in a recording filename.
func SanitizeForFilename(input string) string {
	if input == "" {
		return "Recording"
	}

	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = collapseRuns.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	// Keep names short enough for every filesystem we care about.
	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(sanitized[:50], "-")
	}
	if sanitized == "" {
		return "Recording"
	}
	return sanitized
}

// RecordingName builds the `<type-prefix>-<timestamp>` base name (no
// extension) for a recording started at now.
func RecordingName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s", SanitizeForFilename(prefix), now.Format(timestampLayout))
}

// UniquePath returns path if nothing exists there, otherwise the first
// numbered variant (`base_2.ext`, `base_3.ext`, ...) that is free.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; i < 100; i++ {
		try := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try
		}
	}
	return path
}
