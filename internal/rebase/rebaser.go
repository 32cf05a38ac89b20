// Package rebase converts raw capture timestamps into a continuous output
// timeline. Capture clocks keep running across pause/resume; the rebaser
// subtracts the session start and the accumulated paused duration so the
// written files contain no gaps.
package rebase

import (
	"sync"
	"time"
)

// Rebaser maps raw capture timestamps onto the output timeline. Each stream
// (video, system audio, microphone) is tracked independently so one stream's
// clock never reorders another's.
type Rebaser struct {
	mu             sync.Mutex
	sessionStart   time.Duration
	pausedDuration time.Duration
	pauseStart     time.Duration
	paused         bool
	lastEmitted    map[string]time.Duration
}

// New creates a rebaser anchored at sessionStart, the raw clock value at the
// moment recording began.
func New(sessionStart time.Duration) *Rebaser {
	return &Rebaser{
		sessionStart: sessionStart,
		lastEmitted:  make(map[string]time.Duration),
	}
}

// Pause marks the beginning of a pause interval at raw clock value now.
// Calling Pause while already paused is a no-op.
func (r *Rebaser) Pause(now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	r.paused = true
	r.pauseStart = now
}

// Resume closes the current pause interval and adds its length to the
// accumulated paused duration. A no-op when not paused.
func (r *Rebaser) Resume(now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	if now > r.pauseStart {
		r.pausedDuration += now - r.pauseStart
	}
	r.paused = false
}

// Paused reports whether a pause interval is currently open.
func (r *Rebaser) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// PausedDuration returns the total excised time so far.
func (r *Rebaser) PausedDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedDuration
}

// Adjust rebases raw onto the output timeline for the named stream. The
// second return value is false when the unit must be dropped: raw carries no
// valid timing info (negative), the rebased value would be negative, or it
// would not advance past the last emitted timestamp for that stream.
// Out-of-order units are dropped rather than clamped; rewriting their
// timestamps would corrupt the container.
func (r *Rebaser) Adjust(stream string, raw time.Duration) (time.Duration, bool) {
	if raw < 0 {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := raw - r.sessionStart - r.pausedDuration
	if out < 0 {
		return 0, false
	}
	if last, ok := r.lastEmitted[stream]; ok && out <= last {
		return 0, false
	}
	r.lastEmitted[stream] = out
	return out, true
}
