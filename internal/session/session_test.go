package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelcap/reelcap/internal/config"
	"github.com/reelcap/reelcap/testutil"
)

func TestParseStreamTypeAcceptsKnownSet(t *testing.T) {
	known := []string{"screen", "window", "windowGroup", "application", "screenArea", "systemAudio", "iDevice", "camera"}
	for _, s := range known {
		st, err := ParseStreamType(s)
		testutil.AssertNoError(t, err, "parse "+s)
		testutil.AssertEqual(t, s, string(st), "round trip")
		testutil.AssertNotEqual(t, "", st.Prefix(), "prefix for "+s)
	}
}

func TestParseStreamTypeRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "desktop", "Screen", "screen "} {
		_, err := ParseStreamType(s)
		testutil.AssertErrorIs(t, err, ErrInvalidStreamType, "parse "+s)
	}
}

func TestIsAudioOnly(t *testing.T) {
	testutil.AssertTrue(t, StreamSystemAudio.IsAudioOnly(), "systemAudio")
	testutil.AssertFalse(t, StreamScreen.IsAudioOnly(), "screen")
	testutil.AssertFalse(t, StreamCamera.IsAudioOnly(), "camera")
}

func TestResolveAudioLayoutSingleFile(t *testing.T) {
	l := ResolveAudioLayout("/out/Audio-x", config.AudioAAC, false)
	testutil.AssertEqual(t, LayoutSingle, l.Kind, "layout kind")
	testutil.AssertEqual(t, "/out/Audio-x.m4a", l.PrimaryPath, "aac goes to .m4a")
	testutil.AssertEqual(t, "", l.FilePath1, "no member paths")
}

func TestResolveAudioLayoutCodecExtensions(t *testing.T) {
	cases := []struct {
		codec config.AudioCodec
		ext   string
	}{
		{config.AudioAAC, ".m4a"},
		{config.AudioALAC, ".m4a"},
		{config.AudioFLAC, ".flac"},
		{config.AudioOpus, ".opus"},
	}
	for _, tc := range cases {
		l := ResolveAudioLayout("/out/base", tc.codec, false)
		testutil.AssertTrue(t, strings.HasSuffix(l.PrimaryPath, tc.ext),
			string(tc.codec)+" extension")
	}
}

func TestResolveAudioLayoutPackage(t *testing.T) {
	l := ResolveAudioLayout("/out/Audio-x", config.AudioAAC, true)
	testutil.AssertEqual(t, LayoutPackage, l.Kind, "layout kind")
	testutil.AssertEqual(t, "/out/Audio-x.qma", l.PrimaryPath, "bundle path")
	testutil.AssertEqual(t, filepath.Join("/out/Audio-x.qma", "system.m4a"), l.FilePath1, "system member")
	testutil.AssertEqual(t, filepath.Join("/out/Audio-x.qma", "mic.m4a"), l.FilePath2, "mic member")
	testutil.AssertNotEqual(t, l.FilePath1, l.FilePath2, "members are distinct")
}

func TestBasePathUsesTypePrefix(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	p := BasePath("/out", StreamSystemAudio, now)
	testutil.AssertEqual(t, "/out/Audio-2026-03-14_09.26.53", p, "audio base path")

	p = BasePath("/out", StreamScreen, now)
	testutil.AssertTrue(t, strings.HasPrefix(filepath.Base(p), "Screen-"), "screen prefix")
}

func TestValidateDestination(t *testing.T) {
	dir := t.TempDir()
	testutil.AssertNoError(t, ValidateDestination(dir), "writable directory")

	testutil.AssertErrorIs(t, ValidateDestination(filepath.Join(dir, "missing")), ErrNotADirectory, "missing directory")

	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertErrorIs(t, ValidateDestination(file), ErrNotADirectory, "plain file")
}

func TestValidateDestinationUnwritable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0555); err != nil {
		t.Fatal(err)
	}
	testutil.AssertErrorIs(t, ValidateDestination(dir), ErrNotWritable, "read-only directory")
}
