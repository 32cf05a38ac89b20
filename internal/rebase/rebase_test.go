package rebase

import (
	"testing"
	"time"

	"github.com/reelcap/reelcap/testutil"
)

func TestAdjustSubtractsSessionStart(t *testing.T) {
	r := New(10 * time.Second)

	out, ok := r.Adjust("video", 11*time.Second)
	testutil.AssertTrue(t, ok, "first unit accepted")
	testutil.AssertEqual(t, time.Second, out, "rebased timestamp")
}

func TestAdjustExcisesPausedTime(t *testing.T) {
	r := New(0)

	out, ok := r.Adjust("video", time.Second)
	testutil.AssertTrue(t, ok, "pre-pause unit")
	testutil.AssertEqual(t, time.Second, out, "pre-pause timestamp")

	r.Pause(2 * time.Second)
	r.Resume(5 * time.Second)
	testutil.AssertEqual(t, 3*time.Second, r.PausedDuration(), "excised duration")

	out, ok = r.Adjust("video", 6*time.Second)
	testutil.AssertTrue(t, ok, "post-resume unit")
	testutil.AssertEqual(t, 3*time.Second, out, "pause gap removed from timeline")
}

func TestAdjustDropsNonMonotonic(t *testing.T) {
	r := New(0)

	_, ok := r.Adjust("video", 2*time.Second)
	testutil.AssertTrue(t, ok, "first unit")

	// Same timestamp and an earlier one are both dropped, never clamped.
	_, ok = r.Adjust("video", 2*time.Second)
	testutil.AssertFalse(t, ok, "duplicate timestamp dropped")
	_, ok = r.Adjust("video", time.Second)
	testutil.AssertFalse(t, ok, "regressing timestamp dropped")

	out, ok := r.Adjust("video", 3*time.Second)
	testutil.AssertTrue(t, ok, "advancing unit accepted again")
	testutil.AssertEqual(t, 3*time.Second, out, "timeline continues")
}

func TestAdjustStreamsAreIndependent(t *testing.T) {
	r := New(0)

	_, ok := r.Adjust("video", 2*time.Second)
	testutil.AssertTrue(t, ok, "video unit")

	// An earlier audio timestamp is fine; monotonicity is per stream.
	out, ok := r.Adjust("mic", time.Second)
	testutil.AssertTrue(t, ok, "mic stream unaffected by video clock")
	testutil.AssertEqual(t, time.Second, out, "mic timestamp")
}

func TestAdjustDropsInvalidRaw(t *testing.T) {
	r := New(5 * time.Second)

	_, ok := r.Adjust("video", -time.Second)
	testutil.AssertFalse(t, ok, "negative raw dropped")

	// Raw before the session anchor would rebase negative.
	_, ok = r.Adjust("video", 4*time.Second)
	testutil.AssertFalse(t, ok, "pre-session unit dropped")
}

func TestPauseResumeIdempotent(t *testing.T) {
	r := New(0)
	r.Pause(time.Second)
	r.Pause(2 * time.Second) // ignored, interval already open
	r.Resume(3 * time.Second)
	r.Resume(10 * time.Second) // ignored, not paused

	testutil.AssertEqual(t, 2*time.Second, r.PausedDuration(), "single interval counted")
	testutil.AssertFalse(t, r.Paused(), "not paused after resume")
}

func TestFixedLengthArrayEvictsOldest(t *testing.T) {
	a := NewFixedLengthArray[int](3)
	for _, v := range []int{1, 2, 3, 4, 5} {
		a.Append(v)
	}

	testutil.AssertEqual(t, 3, a.Len(), "capacity bound")
	got := a.Values()
	want := []int{3, 4, 5}
	for i := range want {
		testutil.AssertEqual(t, want[i], got[i], "oldest-first order")
	}
}

func TestFixedLengthArrayUnderCapacity(t *testing.T) {
	a := NewFixedLengthArray[string](4)
	a.Append("a")
	a.Append("b")

	testutil.AssertEqual(t, 2, a.Len(), "partial fill")
	got := a.Values()
	testutil.AssertEqual(t, "a", got[0], "first element")
	testutil.AssertEqual(t, "b", got[1], "second element")
}

func TestIntervalSmoother(t *testing.T) {
	s := NewIntervalSmoother(3)
	for _, ts := range []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		s.Observe(ts)
	}
	testutil.AssertEqual(t, 10*time.Millisecond, s.AverageInterval(), "steady cadence")
}
