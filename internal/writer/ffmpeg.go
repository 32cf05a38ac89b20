package writer

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaWriter is the writer surface the orchestrator appends through. Both
// appends are O(1): units go onto a bounded queue and a pump goroutine feeds
// the encoder, so the producer thread is never blocked by muxer I/O. Under
// sustained backpressure the oldest queued unit is dropped.
type MediaWriter interface {
	AppendVideo(frame []byte, pts time.Duration) error
	AppendAudio(sample []byte, pts time.Duration) error
	Close() error
}

// AudioFormat describes the PCM the muxed microphone track carries.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

const queueDepth = 64

// FFmpegWriter muxes raw BGRA video (and optionally microphone PCM) into a
// single container via an ffmpeg child process. Video arrives on stdin,
// microphone PCM on fd 3.
type FFmpegWriter struct {
	path string
	cmd  *exec.Cmd

	videoIn io.WriteCloser
	audioIn *os.File

	videoQ chan []byte
	audioQ chan []byte
	wg     sync.WaitGroup

	errMu     sync.Mutex
	appendErr error
	closed    bool
}

// OpenFFmpeg compiles the encoder argument graph from spec and starts the
// muxer process. When micFormat is non-nil a second writer input is bound to
// the same output container. On any failure nothing is left half-open.
func OpenFFmpeg(spec *Spec, path string, micFormat *AudioFormat) (*FFmpegWriter, error) {
	video := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "bgra",
		"s":         fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"framerate": strconv.Itoa(spec.FrameRate),
	})
	streams := []*ffmpeg.Stream{video}

	outArgs := ffmpeg.KwArgs{
		"c:v":      spec.EncoderName(),
		"b:v":      strconv.Itoa(spec.BitrateBps),
		"g":        strconv.Itoa(spec.KeyframeInterval),
		"pix_fmt":  spec.PixelFormat,
		"f":        spec.ContainerFormat(),
		"movflags": "+faststart",
	}
	if spec.HDRTagging {
		outArgs["color_primaries"] = "bt2020"
		outArgs["color_trc"] = "smpte2084"
		outArgs["colorspace"] = "bt2020nc"
	}

	var audioPipeR, audioPipeW *os.File
	if micFormat != nil {
		var err error
		audioPipeR, audioPipeW, err = os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
		audio := ffmpeg.Input("pipe:3", ffmpeg.KwArgs{
			"f":  "s16le",
			"ar": strconv.Itoa(micFormat.SampleRate),
			"ac": strconv.Itoa(micFormat.Channels),
		})
		streams = append(streams, audio)
		outArgs["c:a"] = "aac"
	}

	args := ffmpeg.Output(streams, path, outArgs).OverWriteOutput().GetArgs()

	cmd := exec.Command("ffmpeg", args...)
	if audioPipeR != nil {
		// ExtraFiles[0] becomes fd 3 in the child.
		cmd.ExtraFiles = []*os.File{audioPipeR}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		closePipes(audioPipeR, audioPipeW)
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if err := cmd.Start(); err != nil {
		closePipes(audioPipeR, audioPipeW)
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if audioPipeR != nil {
		// Child owns the read end now.
		_ = audioPipeR.Close()
	}

	w := &FFmpegWriter{
		path:    path,
		cmd:     cmd,
		videoIn: stdin,
		audioIn: audioPipeW,
		videoQ:  make(chan []byte, queueDepth),
	}
	if audioPipeW != nil {
		w.audioQ = make(chan []byte, queueDepth)
	}

	w.wg.Add(1)
	go w.pump(w.videoQ, w.videoIn)
	if w.audioQ != nil {
		w.wg.Add(1)
		go w.pump(w.audioQ, w.audioIn)
	}
	return w, nil
}

// Path returns the output file path.
func (w *FFmpegWriter) Path() string { return w.path }

// AppendVideo enqueues one raw frame. pts is already rebased; ffmpeg derives
// container timestamps from the input frame rate.
func (w *FFmpegWriter) AppendVideo(frame []byte, pts time.Duration) error {
	return w.enqueue(w.videoQ, frame)
}

// AppendAudio enqueues microphone PCM for the muxed track.
func (w *FFmpegWriter) AppendAudio(sample []byte, pts time.Duration) error {
	if w.audioQ == nil {
		return fmt.Errorf("%w: no audio input configured", ErrAppendFailed)
	}
	return w.enqueue(w.audioQ, sample)
}

func (w *FFmpegWriter) enqueue(q chan []byte, unit []byte) error {
	w.errMu.Lock()
	if w.closed {
		w.errMu.Unlock()
		return fmt.Errorf("%w: writer closed", ErrAppendFailed)
	}
	err := w.appendErr
	w.errMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	select {
	case q <- unit:
	default:
		// Queue full: drop the oldest unit to keep memory bounded, then
		// retry once. Losing a stale frame beats unbounded buffering.
		select {
		case <-q:
		default:
		}
		select {
		case q <- unit:
		default:
		}
	}
	return nil
}

func (w *FFmpegWriter) pump(q chan []byte, sink io.Writer) {
	defer w.wg.Done()
	for unit := range q {
		if _, err := sink.Write(unit); err != nil {
			w.errMu.Lock()
			if w.appendErr == nil {
				w.appendErr = err
			}
			w.errMu.Unlock()
			// Drain the rest so producers never stall.
			for range q {
			}
			return
		}
	}
}

// Close flushes and closes the writer inputs in fixed order (video before
// audio), then waits for the muxer to finalise the container. Any failure is
// surfaced; the partially written file is left in place for recovery.
func (w *FFmpegWriter) Close() error {
	w.errMu.Lock()
	if w.closed {
		w.errMu.Unlock()
		return nil
	}
	w.closed = true
	w.errMu.Unlock()

	close(w.videoQ)
	if w.audioQ != nil {
		close(w.audioQ)
	}
	w.wg.Wait()

	var firstErr error
	if err := w.videoIn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if w.audioIn != nil {
		if err := w.audioIn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.waitWithTimeout(10 * time.Second); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrCloseFailed, firstErr)
	}
	return nil
}

// Abort kills the muxer without flushing. Always succeeds.
func (w *FFmpegWriter) Abort() {
	w.errMu.Lock()
	alreadyClosed := w.closed
	w.closed = true
	w.errMu.Unlock()
	if !alreadyClosed {
		close(w.videoQ)
		if w.audioQ != nil {
			close(w.audioQ)
		}
		w.wg.Wait()
	}
	_ = w.videoIn.Close()
	if w.audioIn != nil {
		_ = w.audioIn.Close()
	}
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
		_, _ = w.cmd.Process.Wait()
	}
}

func (w *FFmpegWriter) waitWithTimeout(d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		_ = w.cmd.Process.Kill()
		return fmt.Errorf("muxer did not exit within %v", d)
	}
}

func closePipes(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
