package main

import (
	"testing"

	"github.com/reelcap/reelcap/internal/orchestrator"
	"github.com/reelcap/reelcap/internal/session"
	"github.com/reelcap/reelcap/testutil"
)

func TestCaptureSourceFor(t *testing.T) {
	cases := []struct {
		name       string
		streamType session.StreamType
		recordMic  bool
		want       orchestrator.AudioSource
	}{
		{"system audio alone", session.StreamSystemAudio, false, orchestrator.SourceSystem},
		{"split-track bundle", session.StreamSystemAudio, true, orchestrator.SourceMicrophone},
		{"screen with mic", session.StreamScreen, true, orchestrator.SourceMicrophone},
		{"screen without mic", session.StreamScreen, false, orchestrator.SourceMicrophone},
		{"window with mic", session.StreamWindow, true, orchestrator.SourceMicrophone},
	}
	for _, tc := range cases {
		got := captureSourceFor(tc.streamType, tc.recordMic)
		testutil.AssertEqual(t, tc.want, got, tc.name)
	}
}
