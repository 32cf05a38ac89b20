// Package session holds the recording session aggregate and the file layout
// rules. A session is created at prepare, owned exclusively by the
// orchestrator, and destroyed at finalize or abort.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/reelcap/reelcap/internal/writer"
)

var (
	// ErrInvalidStreamType reports a stream type outside the known set. The
	// session must not partially initialise when this is returned.
	ErrInvalidStreamType = errors.New("invalid stream type")

	ErrNotADirectory = errors.New("destination is not a directory")
	ErrNotWritable   = errors.New("destination is not writable")
)

// StreamType selects which capture sources are active and which writer
// inputs exist. Set once at prepare; immutable for the session.
type StreamType string

const (
	StreamScreen      StreamType = "screen"
	StreamWindow      StreamType = "window"
	StreamWindowGroup StreamType = "windowGroup"
	StreamApplication StreamType = "application"
	StreamScreenArea  StreamType = "screenArea"
	StreamSystemAudio StreamType = "systemAudio"
	StreamIDevice     StreamType = "iDevice"
	StreamCamera      StreamType = "camera"
)

var streamTypes = map[StreamType]string{
	StreamScreen:      "Screen",
	StreamWindow:      "Window",
	StreamWindowGroup: "Windows",
	StreamApplication: "App",
	StreamScreenArea:  "Area",
	StreamSystemAudio: "Audio",
	StreamIDevice:     "iDevice",
	StreamCamera:      "Camera",
}

// ParseStreamType validates s against the known set.
func ParseStreamType(s string) (StreamType, error) {
	t := StreamType(s)
	if _, ok := streamTypes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStreamType, s)
	}
	return t, nil
}

// Prefix returns the filename prefix for the stream type.
func (t StreamType) Prefix() string {
	return streamTypes[t]
}

// IsAudioOnly reports whether the type records no video track.
func (t StreamType) IsAudioOnly() bool {
	return t == StreamSystemAudio
}

// Session is the aggregate root for one recording.
type Session struct {
	StreamType      StreamType
	OutputDirectory string
	BasePath        string // timestamped, type-prefixed, no extension

	VideoWriter writer.MediaWriter
	AudioPaths  []string // open audio file paths, primary first

	StartEpoch     time.Time
	PausedDuration time.Duration
	IsPaused       bool
	IsMuted        bool
}

// ValidateDestination checks the output directory exists, is a directory and
// is writable, before any resource is opened.
func ValidateDestination(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	probe, err := os.CreateTemp(dir, ".reelcap-*")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotWritable, dir)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
