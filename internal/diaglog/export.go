package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// maxLineSize matches the rolling log cap so a single oversized line can
// never stall the scanner.
const maxLineSize = 10 * 1024 * 1024

// manifestEntry is the first record of an export bundle. It reuses the
// LogEntry shape so consumers parse one schema for the whole file; the
// platform facts live in the payload.
func manifestEntry(logPath string, entries int) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: ComponentDiag,
		Event:     EventExport,
		Payload: map[string]interface{}{
			"app_version": Version,
			"go_version":  runtime.Version(),
			"os":          runtime.GOOS,
			"arch":        runtime.GOARCH,
			"log_file":    logPath,
			"entry_count": entries,
		},
	}
}

// Export copies the NDJSON log at logPath into a shareable bundle at
// dest/reelcap-diag-<ts>.ndjson, prefixed with a manifest entry. Returns the
// bundle path and the number of log entries copied.
func Export(logPath, dest string) (path string, lines int, err error) {
	entries, err := countEntries(logPath)
	if err != nil {
		return "", 0, err
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "reelcap-diag-"+stamp+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	w := bufio.NewWriter(out)
	manifest, err := json.Marshal(manifestEntry(logPath, entries))
	if err != nil {
		return "", 0, fmt.Errorf("bundle manifest: %w", err)
	}
	if _, err := w.Write(append(manifest, '\n')); err != nil {
		return "", 0, fmt.Errorf("write manifest: %w", err)
	}

	if err := copyEntries(w, logPath); err != nil {
		return "", 0, err
	}
	if err := w.Flush(); err != nil {
		return "", 0, fmt.Errorf("flush export: %w", err)
	}
	return outPath, entries, nil
}

// countEntries counts NDJSON lines without holding the file in memory.
func countEntries(logPath string) (int, error) {
	src, err := openLog(logPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	n := 0
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	for scanner.Scan() {
		n++
	}
	if serr := scanner.Err(); serr != nil {
		return 0, fmt.Errorf("log file unreadable: %w", serr)
	}
	return n, nil
}

// copyEntries streams the log into w line by line, normalising the final
// newline. The log keeps rolling while we copy; lines appended after the
// count pass are carried over without adjusting the manifest.
func copyEntries(w io.Writer, logPath string) error {
	src, err := openLog(logPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	for scanner.Scan() {
		if _, err := w.Write(scanner.Bytes()); err != nil {
			return fmt.Errorf("write log line: %w", err)
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("write log line: %w", err)
		}
	}
	if serr := scanner.Err(); serr != nil {
		return fmt.Errorf("log file unreadable: %w", serr)
	}
	return nil
}

func openLog(logPath string) (*os.File, error) {
	src, err := os.Open(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return nil, fmt.Errorf("log file unreadable: %w", err)
	}
	return src, nil
}
