package bridge

import (
	"errors"
	"fmt"
)

var ErrDisconnected = errors.New("disconnected")

var ErrTooManyOutstandingCommands = errors.New("too many outstanding commands")

// ErrCommandDropped is the result of commands which will never get a response, as the connection
// was closed or the controller was reset.
var ErrCommandDropped = errors.New("command dropped before a response was received")

// ProtocolError is an error:N response to a command.
type ProtocolError struct {
	// Command which caused the error. Empty if it was not sent by us.
	Command     string
	Code        int
	Description string
	Remedy      string
}

func (e *ProtocolError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("error:%d: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%#v: error:%d: %s", e.Command, e.Code, e.Description)
}
