package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelcap/reelcap/testutil"
)

func TestStatusRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := &StatusSnapshot{
		SessionState: "recording",
		StreamType:   "screen",
		OutputPath:   "/out/Screen-x",
		Paused:       false,
		Muted:        true,
		StartedAt:    time.Now().Truncate(time.Second),
	}
	testutil.AssertNoError(t, WriteStatus(in), "write status")

	out, err := ReadStatus()
	testutil.AssertNoError(t, err, "read status")
	testutil.AssertEqual(t, "recording", out.SessionState, "state round trip")
	testutil.AssertEqual(t, "/out/Screen-x", out.OutputPath, "path round trip")
	testutil.AssertTrue(t, out.Muted, "muted flag round trip")
	testutil.AssertFalse(t, out.Timestamp.IsZero(), "timestamp stamped on write")
}

func TestWriteStatusIsAtomic(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	testutil.AssertNoError(t, WriteStatus(&StatusSnapshot{SessionState: "idle"}), "write")

	dir := filepath.Join(os.Getenv("HOME"), ".cache", "reelcap")
	entries, err := os.ReadDir(dir)
	testutil.AssertNoError(t, err, "read cache dir")
	for _, e := range entries {
		if e.Name() != "status.json" {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestCommandRoundTripAndClear(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	testutil.AssertNoError(t, WriteCommand(CmdPause), "write command")

	cmd, err := ReadCommand()
	testutil.AssertNoError(t, err, "read command")
	testutil.AssertEqual(t, CmdPause, cmd, "command round trip")

	// A command is consumed on read so it never runs twice.
	cmd, err = ReadCommand()
	testutil.AssertNoError(t, err, "second read")
	testutil.AssertEqual(t, Command(""), cmd, "command cleared after read")
}

func TestReadCommandNoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd, err := ReadCommand()
	testutil.AssertNoError(t, err, "missing file is not an error")
	testutil.AssertEqual(t, Command(""), cmd, "no pending command")
}
