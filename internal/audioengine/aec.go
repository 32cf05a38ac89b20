package audioengine

import (
	"encoding/binary"
	"sync"

	"github.com/reelcap/reelcap/internal/rebase"
)

// aecNode is the echo-cancellation stage in the capture path. It tracks
// recent system-output levels in a bounded ring and attenuates the
// microphone signal while the loudspeakers are active, which removes the
// bulk of playback bleed-through without touching quiet passages.
type aecNode struct {
	mu  sync.Mutex
	ref *rebase.FixedLengthArray[float64]
}

const (
	aecWindow      = 16
	aecThreshold   = 0.12
	aecAttenuation = 0.25
)

func newAECNode() *aecNode {
	return &aecNode{ref: rebase.NewFixedLengthArray[float64](aecWindow)}
}

// PushReference records a normalised system-output level sample (0..1).
func (n *aecNode) PushReference(level float64) {
	n.mu.Lock()
	n.ref.Append(level)
	n.mu.Unlock()
}

// Process applies suppression to interleaved s16le PCM in place.
func (n *aecNode) Process(pcm []byte) {
	n.mu.Lock()
	levels := n.ref.Values()
	n.mu.Unlock()

	if len(levels) == 0 {
		return
	}
	var sum float64
	for _, l := range levels {
		sum += l
	}
	if sum/float64(len(levels)) < aecThreshold {
		return
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(float64(s)*aecAttenuation)))
	}
}
