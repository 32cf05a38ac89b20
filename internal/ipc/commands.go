package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from the UI to the recorder daemon.
type Command string

const (
	CmdStart  Command = "start"  // Prepare and start a session
	CmdStop   Command = "stop"   // Finalize the active session
	CmdPause  Command = "pause"  // Pause the active session
	CmdResume Command = "resume" // Resume a paused session
	CmdMute   Command = "mute"   // Toggle microphone mute
	CmdAbort  Command = "abort"  // Discard the active session
	CmdQuit   Command = "quit"   // Shut the daemon down
)

// WriteCommand writes a command to ~/.cache/reelcap/cmd.txt.
func WriteCommand(cmd Command) error {
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "cmd.txt"), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the pending command. Returns "" when none is
// pending; the file is cleared immediately so a command never runs twice.
func ReadCommand() (Command, error) {
	path := filepath.Join(cacheDir(), "cmd.txt")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		return "", err
	}
	return Command(strings.TrimSpace(string(data))), nil
}
