package writer

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ProbeResult contains the outcome of an encoder toolchain check.
type ProbeResult struct {
	OK      bool
	Message string
	Issues  []string
	Fixes   []string
}

// minimum ffmpeg major version with stable libx265 HDR tagging flags.
const minFFmpegMajor = 4

var versionRe = regexp.MustCompile(`ffmpeg version (\d+)\.(\d+)`)

// ProbeFFmpeg verifies the ffmpeg binary is present and recent enough before
// any session opens a writer. Run once at startup, not on the append path.
func ProbeFFmpeg() *ProbeResult {
	out, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return &ProbeResult{
			OK:      false,
			Message: "ffmpeg binary not found",
			Issues:  []string{fmt.Sprintf("running ffmpeg failed: %v", err)},
			Fixes:   []string{"install ffmpeg and make sure it is on PATH"},
		}
	}
	return ParseFFmpegVersion(string(out))
}

// ParseFFmpegVersion checks a `ffmpeg -version` banner against the minimum
// supported version.
func ParseFFmpegVersion(banner string) *ProbeResult {
	result := &ProbeResult{OK: true}

	firstLine := banner
	if idx := strings.IndexByte(banner, '\n'); idx >= 0 {
		firstLine = banner[:idx]
	}

	matches := versionRe.FindStringSubmatch(firstLine)
	if len(matches) < 3 {
		result.OK = false
		result.Message = fmt.Sprintf("could not parse ffmpeg version from %q", firstLine)
		result.Issues = append(result.Issues, "unrecognised version banner")
		result.Fixes = append(result.Fixes, "install a release build of ffmpeg 4.0 or later")
		return result
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	if major < minFFmpegMajor {
		result.OK = false
		result.Message = fmt.Sprintf("ffmpeg %d.%d is too old (requires %d.0+)", major, minor, minFFmpegMajor)
		result.Issues = append(result.Issues, result.Message)
		result.Fixes = append(result.Fixes, fmt.Sprintf("upgrade ffmpeg to %d.0 or later", minFFmpegMajor))
		return result
	}

	result.Message = fmt.Sprintf("ffmpeg %d.%d is compatible (requires %d.0+)", major, minor, minFFmpegMajor)
	return result
}
