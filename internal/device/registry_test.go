package device

import (
	"testing"

	"github.com/reelcap/reelcap/testutil"
)

// fakeEnumerator returns canned device lists.
type fakeEnumerator struct {
	mics    []Device
	cameras []Device
	aux     []Device
	err     error
}

func (f *fakeEnumerator) Microphones() ([]Device, error) { return f.mics, f.err }
func (f *fakeEnumerator) Cameras() ([]Device, error)     { return f.cameras, f.err }
func (f *fakeEnumerator) Auxiliary() ([]Device, error)   { return f.aux, f.err }

func TestListMicrophonesFiltersVirtualDevices(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{mics: []Device{
		{ID: "1", LocalizedName: "MacBook Pro Microphone", Kind: KindMicrophone},
		{ID: "2", LocalizedName: "BlackHole 2ch", Kind: KindMicrophone},
		{ID: "3", LocalizedName: "Aggregate Device", Kind: KindMicrophone},
		{ID: "4", LocalizedName: "Blue Yeti", Kind: KindMicrophone},
		{ID: "5", LocalizedName: "ZoomAudioDevice", Kind: KindMicrophone},
	}})

	mics := r.ListMicrophones()
	testutil.AssertEqual(t, 2, len(mics), "virtual devices filtered")
	testutil.AssertEqual(t, "MacBook Pro Microphone", mics[0].LocalizedName, "first physical mic")
	testutil.AssertEqual(t, "Blue Yeti", mics[1].LocalizedName, "second physical mic")
}

func TestListMicrophonesEnumerationErrorIsEmpty(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{err: ErrDeviceUnavailable})
	testutil.AssertEqual(t, 0, len(r.ListMicrophones()), "errors degrade to empty list")
}

func TestResolveSentinelReturnsNil(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{mics: []Device{
		{ID: "1", LocalizedName: "Blue Yeti", Kind: KindMicrophone},
	}})

	if r.Resolve("") != nil {
		t.Error("empty name should resolve to nil")
	}
	if r.Resolve(DefaultSentinel) != nil {
		t.Error("default sentinel should resolve to nil")
	}
}

func TestResolveExactMatch(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{
		mics:    []Device{{ID: "1", LocalizedName: "Blue Yeti", Kind: KindMicrophone}},
		cameras: []Device{{ID: "c1", LocalizedName: "FaceTime HD Camera", Kind: KindCamera}},
	})

	d := r.Resolve("Blue Yeti")
	testutil.AssertNotNil(t, d, "saved mic resolves")
	testutil.AssertEqual(t, "1", d.ID, "mic handle")

	cam := r.Resolve("FaceTime HD Camera")
	testutil.AssertNotNil(t, cam, "saved camera resolves")
	testutil.AssertEqual(t, KindCamera, cam.Kind, "camera kind")
}

func TestResolveUnknownNameReturnsNil(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{mics: []Device{
		{ID: "1", LocalizedName: "Blue Yeti", Kind: KindMicrophone},
	}})
	if r.Resolve("Unplugged Mic") != nil {
		t.Error("an unknown saved name should resolve to nil, not error")
	}
}

func TestResolveVirtualDeviceHidden(t *testing.T) {
	r := NewRegistry(&fakeEnumerator{mics: []Device{
		{ID: "2", LocalizedName: "BlackHole 2ch", Kind: KindMicrophone},
	}})
	if r.Resolve("BlackHole 2ch") != nil {
		t.Error("virtual loopback devices must not resolve as inputs")
	}
}
