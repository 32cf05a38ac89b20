// Package audioengine owns the audio node graph: the bound input device, the
// echo-cancellation node, and the writable audio files. The engine has an
// explicit idle/running lifecycle; start either fully succeeds or rolls back
// to idle.
package audioengine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/reelcap/reelcap/internal/config"
	"github.com/reelcap/reelcap/internal/device"
)

// DefaultSampleRate is used when no device reports a native rate.
const DefaultSampleRate = 48000

const captureChannels = 2

var (
	ErrEngineStartFailed   = errors.New("audio engine start failed")
	ErrInvalidDestination  = errors.New("invalid audio file destination")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrLoopbackUnsupported = errors.New("system loopback capture unsupported")
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

// FormatSpec describes a negotiated or requested audio format.
type FormatSpec struct {
	SampleRate  int
	Channels    int
	Codec       config.AudioCodec
	BitrateKbps int // lossy codecs only
}

// SampleSink receives post-AEC PCM from the device callback. Must be O(1)
// and non-blocking; it runs on the audio callback thread.
type SampleSink func(pcm []byte, frames uint32)

// Engine bridges the hardware input node, the AEC node and the audio files.
type Engine struct {
	mu       sync.Mutex
	registry *device.Registry

	state    State
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	loopback *malgo.Device

	inputDeviceName  string
	cameraDeviceName string
	unavailable      map[string]bool

	aecDesired bool
	aec        *aecNode // non-nil only while running with AEC engaged

	inputFormat  *FormatSpec
	sink         SampleSink
	loopbackSink SampleSink

	files []*AudioFile
	tap   *TapDump
}

// New creates an idle engine over the given registry.
func New(registry *device.Registry) *Engine {
	return &Engine{
		registry:    registry,
		unavailable: make(map[string]bool),
	}
}

// SetSampleSink installs the consumer for captured PCM. Takes effect on the
// next Start.
func (e *Engine) SetSampleSink(sink SampleSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// SetLoopbackSink installs the consumer for system-output loopback PCM.
// Takes effect on the next StartLoopback.
func (e *Engine) SetLoopbackSink(sink SampleSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loopbackSink = sink
}

// SetInputDevice records the desired input device name. Does not start the
// engine; a running engine keeps its current binding until restarted.
func (e *Engine) SetInputDevice(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputDeviceName = name
	delete(e.unavailable, name)
}

// SetCameraDevice records the desired camera device name.
func (e *Engine) SetCameraDevice(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cameraDeviceName = name
}

// SetAECEnabled toggles the echo-cancellation node in the signal path. Legal
// while idle or running; when running, the change takes effect on the next
// Start.
func (e *Engine) SetAECEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aecDesired = enabled
}

// HandleDeviceChange reacts to a device connect/disconnect notification from
// the capture layer. A disconnect marks the handle invalid so the next use
// fails with ErrDeviceUnavailable instead of crashing inside the driver.
func (e *Engine) HandleDeviceChange(name string, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if connected {
		delete(e.unavailable, name)
		return
	}
	e.unavailable[name] = true
	slog.Info("audio device disconnected", "device", name)
}

// Start binds the desired input device (system default when none is
// resolvable) and the AEC node, and begins pulling samples. On any failure
// the engine rolls back to a clean idle state; it is never left half-started.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return nil
	}

	if e.inputDeviceName != "" && e.unavailable[e.inputDeviceName] {
		return fmt.Errorf("%w: %s", device.ErrDeviceUnavailable, e.inputDeviceName)
	}

	if e.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEngineStartFailed, err)
		}
		e.ctx = ctx
	}

	resolved := e.registry.Resolve(e.inputDeviceName)

	sampleRate := DefaultSampleRate
	if resolved != nil && resolved.SampleRate > 0 {
		sampleRate = resolved.SampleRate
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = captureChannels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if resolved != nil {
		id, ok := e.findCaptureID(resolved.LocalizedName)
		if !ok {
			return fmt.Errorf("%w: %s", device.ErrDeviceUnavailable, resolved.LocalizedName)
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	var aec *aecNode
	if e.aecDesired {
		aec = newAECNode()
	}

	// Captured here so the callback never races engine field updates; new
	// sinks and taps take effect on the next Start.
	sink := e.sink
	tap := e.tap

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			// Copy before handing off; malgo reuses the buffer.
			pcm := make([]byte, len(input))
			copy(pcm, input)
			if aec != nil {
				aec.Process(pcm)
			}
			if tap != nil {
				tap.Write(pcm)
			}
			if sink != nil {
				sink(pcm, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineStartFailed, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: %v", ErrEngineStartFailed, err)
	}

	e.device = dev
	e.aec = aec
	e.state = StateRunning
	e.inputFormat = &FormatSpec{SampleRate: sampleRate, Channels: captureChannels}
	slog.Debug("audio engine started", "sample_rate", sampleRate, "aec", aec != nil)
	return nil
}

// StartLoopback opens a second capture stream on the system output mix.
// Split-track sessions use it to feed the system member while the bound
// input device feeds the microphone member. Fails with
// ErrLoopbackUnsupported when the backend has no loopback capture; the
// input capture is unaffected either way.
func (e *Engine) StartLoopback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loopback != nil {
		return nil
	}
	if e.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEngineStartFailed, err)
		}
		e.ctx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = captureChannels
	deviceConfig.SampleRate = DefaultSampleRate
	deviceConfig.Alsa.NoMMap = 1

	sink := e.loopbackSink
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			pcm := make([]byte, len(input))
			copy(pcm, input)
			if sink != nil {
				sink(pcm, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoopbackUnsupported, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: %v", ErrLoopbackUnsupported, err)
	}
	e.loopback = dev
	slog.Debug("loopback capture started")
	return nil
}

// Stop halts capture and releases the device node. Idempotent; safe while
// idle. No sample callback is in flight once Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.loopback != nil {
		_ = e.loopback.Stop()
		e.loopback.Uninit()
		e.loopback = nil
	}
	if e.state != StateRunning {
		return
	}
	if e.device != nil {
		_ = e.device.Stop()
		e.device.Uninit()
		e.device = nil
	}
	e.aec = nil
	e.inputFormat = nil
	e.state = StateIdle
}

// Reset tears down and rebuilds the node graph, collapsing any state back to
// a clean idle. Used after repeated start failures or a device hot-swap. The
// context is re-created lazily on the next Start.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	if e.ctx != nil {
		_ = e.ctx.Uninit()
		e.ctx.Free()
		e.ctx = nil
	}
	e.unavailable = make(map[string]bool)
	slog.Debug("audio engine reset")
}

// PushOutputLevel feeds a system-output level sample into the AEC reference
// path. A no-op when AEC is not engaged.
func (e *Engine) PushOutputLevel(level float64) {
	e.mu.Lock()
	aec := e.aec
	e.mu.Unlock()
	if aec != nil {
		aec.PushReference(level)
	}
}

// CurrentInputFormat returns the negotiated input format, or nil when no
// hardware is bound. Absence of hardware is a normal condition, not an error.
func (e *Engine) CurrentInputFormat() *FormatSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inputFormat == nil {
		return nil
	}
	f := *e.inputFormat
	return &f
}

// CurrentOutputFormat returns the system default output format, or nil when
// no output hardware is present.
func (e *Engine) CurrentOutputFormat() *FormatSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil
	}
	infos, err := e.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil
	}
	for _, info := range infos {
		if info.IsDefault != 0 && len(info.Formats) > 0 {
			return &FormatSpec{
				SampleRate: int(info.Formats[0].SampleRate),
				Channels:   int(info.Formats[0].Channels),
			}
		}
	}
	return nil
}

// findCaptureID matches a device name back to its native ID for binding.
func (e *Engine) findCaptureID(name string) (malgo.DeviceID, bool) {
	infos, err := e.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, false
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}
