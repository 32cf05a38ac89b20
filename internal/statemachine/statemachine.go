// Package statemachine enforces the session lifecycle. Every transition the
// orchestrator makes goes through the table here, so an illegal call (say,
// pausing an idle session) fails before any resource is touched.
package statemachine

import (
	"errors"
	"fmt"
	"sync"
)

// State is one lifecycle phase of a recording session.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateFinalizing State = "finalizing"
	StateAborted    State = "aborted"
)

// ErrInvalidTransition reports a lifecycle call that is not legal in the
// current state. The machine is unchanged when this is returned.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the legal successor states. Abort is representable from
// every non-idle state; a finished abort parks the machine in StateAborted
// until the next prepare clears it.
var transitions = map[State][]State{
	StateIdle:       {StatePreparing},
	StatePreparing:  {StateRecording, StateAborted, StateIdle},
	StateRecording:  {StatePaused, StateFinalizing, StateAborted},
	StatePaused:     {StateRecording, StateFinalizing, StateAborted},
	StateFinalizing: {StateIdle, StateAborted},
	StateAborted:    {StatePreparing, StateIdle},
}

// Machine is a mutex-guarded lifecycle state holder.
type Machine struct {
	mu    sync.Mutex
	state State
}

// New returns a machine in StateIdle.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves the machine to next, failing with ErrInvalidTransition when the
// table does not allow it.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// Is reports whether the machine is in any of the given states.
func (m *Machine) Is(states ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}

// FailureStreak counts consecutive failures and fires once a threshold is
// crossed. A single success resets the count; transient one-off errors never
// escalate.
type FailureStreak struct {
	threshold int
	count     int
}

// NewFailureStreak creates a streak tracker that fires at threshold
// consecutive failures.
func NewFailureStreak(threshold int) *FailureStreak {
	return &FailureStreak{threshold: threshold}
}

// Observe records one outcome. It returns true exactly when this failure
// reaches the threshold.
func (s *FailureStreak) Observe(ok bool) bool {
	if ok {
		s.count = 0
		return false
	}
	s.count++
	return s.count == s.threshold
}

// Count returns the current consecutive failure count.
func (s *FailureStreak) Count() int {
	return s.count
}

// Reset clears the streak.
func (s *FailureStreak) Reset() {
	s.count = 0
}
