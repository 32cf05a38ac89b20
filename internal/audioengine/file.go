package audioengine

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/reelcap/reelcap/internal/config"
)

// AudioFile is an open writable audio container fed with s16le PCM.
type AudioFile struct {
	Path string

	cmd *exec.Cmd
	in  io.WriteCloser

	mu     sync.Mutex
	closed bool
}

// encoderFor maps the codec onto an ffmpeg encoder and muxer. Unknown codecs
// report ok=false.
func encoderFor(codec config.AudioCodec) (encoder, muxer string, ok bool) {
	switch codec {
	case config.AudioAAC:
		return "aac", "ipod", true
	case config.AudioALAC:
		return "alac", "ipod", true
	case config.AudioFLAC:
		return "flac", "flac", true
	case config.AudioOpus:
		return "libopus", "ogg", true
	default:
		return "", "", false
	}
}

// CreateAudioFile opens a new writable audio container at path with the
// given format. The file exists on disk (header written) before the call
// returns, even before any samples are appended. Fails with
// ErrInvalidDestination when the parent directory is missing or unwritable
// and ErrUnsupportedFormat when spec cannot be mapped to an encoder.
func (e *Engine) CreateAudioFile(path string, spec FormatSpec) (*AudioFile, error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, dir)
	}

	encoder, muxer, ok := encoderFor(spec.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: codec %q", ErrUnsupportedFormat, spec.Codec)
	}

	sampleRate := spec.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	channels := spec.Channels
	if channels <= 0 {
		channels = captureChannels
	}

	// Pre-create the file so it is observable immediately; ffmpeg then
	// overwrites it in place. Doubles as the writability check.
	probe, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, path)
	}
	_ = probe.Close()

	outArgs := ffmpeg.KwArgs{"c:a": encoder, "f": muxer}
	if !spec.Codec.Lossless() && spec.BitrateKbps > 0 {
		outArgs["b:a"] = strconv.Itoa(spec.BitrateKbps) + "k"
	}
	args := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"f":  "s16le",
		"ar": strconv.Itoa(sampleRate),
		"ac": strconv.Itoa(channels),
	}).Output(path, outArgs).OverWriteOutput().GetArgs()

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	f := &AudioFile{Path: path, cmd: cmd, in: stdin}

	e.mu.Lock()
	e.files = append(e.files, f)
	e.mu.Unlock()
	return f, nil
}

// Append writes PCM into the encoder. Returns an error once closed.
func (f *AudioFile) Append(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("audio file %s already closed", f.Path)
	}
	_, err := f.in.Write(pcm)
	return err
}

// Close flushes the encoder and finalises the container. Idempotent.
func (f *AudioFile) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	errClose := f.in.Close()
	errWait := f.cmd.Wait()
	if errClose != nil {
		return errClose
	}
	return errWait
}

// CleanupAudioFiles closes and releases every open audio file handle. Safe
// to call repeatedly and never fails; close errors here are logged by the
// caller at finalize, not at cleanup.
func (e *Engine) CleanupAudioFiles() {
	e.mu.Lock()
	files := e.files
	e.files = nil
	e.mu.Unlock()

	for _, f := range files {
		_ = f.Close()
	}
}

// OpenFiles returns the currently open audio files, primary first.
func (e *Engine) OpenFiles() []*AudioFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*AudioFile(nil), e.files...)
}
