package session

import (
	"path/filepath"
	"time"

	"github.com/reelcap/reelcap/internal/config"
	"github.com/reelcap/reelcap/internal/fileutil"
)

// LayoutKind distinguishes the audio output shapes.
type LayoutKind int

const (
	// LayoutSingle writes one audio container.
	LayoutSingle LayoutKind = iota
	// LayoutPackage writes a split-track bundle: system audio and microphone
	// as two synchronized members. Keeping the clocks in separate tracks
	// avoids drift correction at mux time and lets either track be muted
	// afterwards without re-encoding the other.
	LayoutPackage
)

// PackageExt is the bundle suffix for split-track audio recordings.
const PackageExt = ".qma"

// Layout is the resolved on-disk shape of an audio-only recording.
type Layout struct {
	Kind        LayoutKind
	PrimaryPath string // single file, or the bundle directory
	FilePath1   string // system-audio track (package layout only)
	FilePath2   string // microphone track (package layout only)
}

// AudioExtension maps the codec to the container extension: .m4a for the
// MPEG-4 family, codec-native extension otherwise.
func AudioExtension(codec config.AudioCodec) string {
	switch codec {
	case config.AudioFLAC:
		return ".flac"
	case config.AudioOpus:
		return ".opus"
	default:
		return ".m4a"
	}
}

// ResolveAudioLayout decides the audio file layout for basePath. Without a
// microphone the recording is a single file; with one it becomes a .qma
// package holding two member tracks at deterministic relative paths.
func ResolveAudioLayout(basePath string, codec config.AudioCodec, recordMic bool) Layout {
	ext := AudioExtension(codec)
	if !recordMic {
		return Layout{Kind: LayoutSingle, PrimaryPath: basePath + ext}
	}
	bundle := basePath + PackageExt
	return Layout{
		Kind:        LayoutPackage,
		PrimaryPath: bundle,
		FilePath1:   filepath.Join(bundle, "system"+ext),
		FilePath2:   filepath.Join(bundle, "mic"+ext),
	}
}

// BasePath computes the type-prefixed, timestamped base path (no extension)
// for a new session inside dir.
func BasePath(dir string, t StreamType, now time.Time) string {
	name := fileutil.RecordingName(t.Prefix(), now)
	return filepath.Join(dir, name)
}
