package bus

import (
	"fmt"
	"strings"
)

// Command is a remote playback control.
type Command string

const (
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandSkip   Command = "skip"
	CommandStop   Command = "stop"
)

// ParseCommand parses a control message body.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToLower(strings.TrimSpace(s))); c {
	case CommandPause, CommandResume, CommandSkip, CommandStop:
		return c, nil
	case "next":
		return CommandSkip, nil
	default:
		return "", fmt.Errorf("unknown command %q", s)
	}
}
