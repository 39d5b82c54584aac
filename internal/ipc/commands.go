// Package ipc is the out-of-band control channel of the monitor: a
// command file other processes write to, and a status snapshot the monitor
// keeps current.
package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CommandFile is the name of the command file inside the control dir.
const CommandFile = "cmd.txt"

// Command is a control request to the running monitor.
type Command string

const (
	CmdStart   Command = "start"   // Enable auto-start and start a job
	CmdStop    Command = "stop"    // Disable auto-start and cancel the job
	CmdToggle  Command = "toggle"  // Flip auto-start
	CmdRestart Command = "restart" // Restart the job from the current position
	CmdQuit    Command = "quit"    // Shut the monitor down
)

// Commands lists every accepted command.
var Commands = []Command{CmdStart, CmdStop, CmdToggle, CmdRestart, CmdQuit}

// ParseCommand validates s as a command name.
func ParseCommand(s string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Commands {
		if c == cmd {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// WriteCommand writes cmd to the command file in dir.
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CommandFile), []byte(string(cmd)), 0o644)
}

// ReadCommand reads and clears the command file in dir.
// Returns empty string if no command or file doesn't exist
func ReadCommand(dir string) (Command, error) {
	cmdPath := filepath.Join(dir, CommandFile)

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, nil, 0o644); err != nil {
		return "", err
	}

	cmd, err := ParseCommand(string(data))
	if err != nil {
		// Unknown commands are dropped.
		return "", nil
	}
	return cmd, nil
}
