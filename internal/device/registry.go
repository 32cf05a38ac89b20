// Package device enumerates capture hardware and resolves saved device
// identifiers to live handles. The registry is a pure lookup layer: it never
// opens devices and keeps no cache of its own.
package device

import (
	"errors"
	"strings"
)

// DefaultSentinel is the saved-name value meaning "whatever the system
// default is". It deliberately resolves to no device: the audio engine binds
// the OS default itself, and treating the sentinel as a real device would
// pin the user to a stale handle after a hot-swap.
const DefaultSentinel = "default"

// ErrDeviceUnavailable is returned by consumers when a previously resolved
// device handle has gone away (unplugged, aggregate torn down).
var ErrDeviceUnavailable = errors.New("device unavailable")

// Kind classifies an enumerated device.
type Kind string

const (
	KindCamera     Kind = "camera"
	KindMicrophone Kind = "microphone"
	KindAuxiliary  Kind = "auxiliary" // iDevices, capture cards
)

// Device is a live handle to an enumerated capture device.
type Device struct {
	ID            string
	LocalizedName string
	Kind          Kind
	SampleRate    int // native rate, audio devices only; 0 when unknown
	IsDefault     bool
}

// Enumerator produces fresh device lists. The audio side is backed by the
// sound stack; cameras and auxiliary devices are fed by the capture layer.
type Enumerator interface {
	Microphones() ([]Device, error)
	Cameras() ([]Device, error)
	Auxiliary() ([]Device, error)
}

// virtualMarkers identify synthetic or aggregate audio devices that must not
// be offered as recording inputs: they loop system output back and would
// double-capture.
var virtualMarkers = []string{
	"BlackHole",
	"Loopback",
	"Aggregate",
	"Soundflower",
	"ZoomAudioDevice",
	"Virtual",
}

// Registry performs filtered enumeration and saved-name resolution.
type Registry struct {
	enum Enumerator
}

// NewRegistry wraps an enumerator.
func NewRegistry(enum Enumerator) *Registry {
	return &Registry{enum: enum}
}

// ListMicrophones returns physical microphones, excluding virtual and
// aggregate loopback devices. Enumeration errors degrade to an empty list;
// absence of hardware is not exceptional.
func (r *Registry) ListMicrophones() []Device {
	devs, err := r.enum.Microphones()
	if err != nil {
		return nil
	}
	out := devs[:0:0]
	for _, d := range devs {
		if isVirtual(d.LocalizedName) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ListCameras returns the cameras known to the capture layer.
func (r *Registry) ListCameras() []Device {
	devs, err := r.enum.Cameras()
	if err != nil {
		return nil
	}
	return devs
}

// ListAuxiliaryDevices returns iDevices and other auxiliary capture sources.
func (r *Registry) ListAuxiliaryDevices() []Device {
	devs, err := r.enum.Auxiliary()
	if err != nil {
		return nil
	}
	return devs
}

// Resolve maps a saved device name to a live handle. It returns nil for an
// empty name, the "default" sentinel, or a name matching no enumerated
// device. Absence is a normal condition, never an error.
func (r *Registry) Resolve(savedName string) *Device {
	if savedName == "" || savedName == DefaultSentinel {
		return nil
	}
	for _, list := range [][]Device{r.ListMicrophones(), r.ListCameras(), r.ListAuxiliaryDevices()} {
		for i := range list {
			if list[i].LocalizedName == savedName {
				d := list[i]
				return &d
			}
		}
	}
	return nil
}

func isVirtual(name string) bool {
	for _, marker := range virtualMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
