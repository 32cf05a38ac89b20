package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoEnumerator enumerates audio devices through miniaudio. Cameras and
// auxiliary devices cannot be discovered by the sound stack; the capture
// layer pushes those lists in via UpdateCameras/UpdateAuxiliary.
type MalgoEnumerator struct {
	ctx *malgo.AllocatedContext

	mu      sync.RWMutex
	cameras []Device
	aux     []Device
}

// NewMalgoEnumerator initialises a miniaudio context for enumeration.
func NewMalgoEnumerator() (*MalgoEnumerator, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoEnumerator{ctx: ctx}, nil
}

// Close releases the underlying context.
func (e *MalgoEnumerator) Close() {
	if e.ctx != nil {
		_ = e.ctx.Uninit()
		e.ctx.Free()
		e.ctx = nil
	}
}

// Microphones lists capture-capable audio devices.
func (e *MalgoEnumerator) Microphones() ([]Device, error) {
	if e.ctx == nil {
		return nil, nil
	}
	infos, err := e.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, Device{
			ID:            fmt.Sprintf("%x", info.ID),
			LocalizedName: info.Name(),
			Kind:          KindMicrophone,
			SampleRate:    nativeRate(info),
			IsDefault:     info.IsDefault != 0,
		})
	}
	return out, nil
}

// Cameras returns the list last pushed by the capture layer.
func (e *MalgoEnumerator) Cameras() ([]Device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Device(nil), e.cameras...), nil
}

// Auxiliary returns the list last pushed by the capture layer.
func (e *MalgoEnumerator) Auxiliary() ([]Device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Device(nil), e.aux...), nil
}

// UpdateCameras replaces the camera list on a device-change notification.
func (e *MalgoEnumerator) UpdateCameras(cams []Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cameras = append([]Device(nil), cams...)
}

// UpdateAuxiliary replaces the auxiliary device list.
func (e *MalgoEnumerator) UpdateAuxiliary(devs []Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aux = append([]Device(nil), devs...)
}

func nativeRate(info malgo.DeviceInfo) int {
	if len(info.Formats) > 0 {
		return int(info.Formats[0].SampleRate)
	}
	return 0
}
