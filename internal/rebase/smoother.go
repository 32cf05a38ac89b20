package rebase

import "time"

// IntervalSmoother averages the spacing of recent frame timestamps over a
// bounded window. Used to report the effective frame rate without letting a
// single stall skew the number forever.
type IntervalSmoother struct {
	intervals *FixedLengthArray[time.Duration]
	last      time.Duration
	hasLast   bool
}

// NewIntervalSmoother creates a smoother over the last window intervals.
func NewIntervalSmoother(window int) *IntervalSmoother {
	return &IntervalSmoother{intervals: NewFixedLengthArray[time.Duration](window)}
}

// Observe records a frame timestamp on the output timeline.
func (s *IntervalSmoother) Observe(ts time.Duration) {
	if s.hasLast && ts > s.last {
		s.intervals.Append(ts - s.last)
	}
	s.last = ts
	s.hasLast = true
}

// AverageInterval returns the mean spacing of the observed window, or zero
// when fewer than two frames have been seen.
func (s *IntervalSmoother) AverageInterval() time.Duration {
	vals := s.intervals.Values()
	if len(vals) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vals {
		sum += v
	}
	return sum / time.Duration(len(vals))
}
