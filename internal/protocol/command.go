package protocol

import (
	"fmt"
	"strings"
)

// ParseCommand validates client command text.
// The first whitespace-separated token names the command and the remaining
// tokens, joined by single spaces, form the message.
func ParseCommand(text string) (CommandType, string, error) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return 0, "", ErrIllegalMsg
	}
	cmd, ok := parseCommandType(parts[0])
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrUnsupportedCommand, parts[0])
	}
	msg := strings.Join(parts[1:], " ")
	switch cmd {
	case CommandStatus:
		if msg != "" {
			return 0, "", fmt.Errorf("%w: status takes no argument", ErrUnsupportedCommand)
		}
	case CommandPrint:
		if msg == "" {
			return 0, "", fmt.Errorf("%w: print requires a message", ErrUnsupportedCommand)
		}
	}
	return cmd, msg, nil
}

// NewCommandRequest builds a request from command text.
func NewCommandRequest(id, cookie int, text string) (CommandRequest, error) {
	cmd, msg, err := ParseCommand(text)
	if err != nil {
		return CommandRequest{}, err
	}
	if !validCommandID(id) {
		return CommandRequest{}, fmt.Errorf("%w: command id %d out of range", ErrFrame, id)
	}
	return CommandRequest{ID: id, Cookie: cookie, Type: cmd, Message: msg}, nil
}
