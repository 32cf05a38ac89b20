package audioengine

import (
	"encoding/binary"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TapDump mirrors post-AEC PCM into an uncompressed WAV file so the signal
// path can be inspected without decoding the session output. Debug tool;
// enabled via the tap_dump_path setting.
type TapDump struct {
	mu     sync.Mutex
	f      *os.File
	enc    *wav.Encoder
	format *goaudio.Format
	closed bool
}

// NewTapDump opens a WAV file at path for the given capture format.
func NewTapDump(path string, sampleRate, channels int) (*TapDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &TapDump{
		f:      f,
		enc:    wav.NewEncoder(f, sampleRate, 16, channels, 1),
		format: &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
	}, nil
}

// Write appends interleaved s16le PCM. Errors are swallowed; a failing debug
// tap must never disturb the capture path.
func (t *TapDump) Write(pcm []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	_ = t.enc.Write(&goaudio.IntBuffer{
		Format:         t.format,
		Data:           samples,
		SourceBitDepth: 16,
	})
}

// Close finalises the WAV header. Idempotent.
func (t *TapDump) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	_ = t.enc.Close()
	_ = t.f.Close()
}

// SetTapDump installs (or clears, with nil) the debug tap. Takes effect on
// the next Start; the previous tap is closed.
func (e *Engine) SetTapDump(t *TapDump) {
	e.mu.Lock()
	old := e.tap
	e.tap = t
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
}
