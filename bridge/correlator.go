package bridge

import (
	"fmt"
	"time"

	"github.com/fornellas/grblbridge/grbl"
)

var DefaultMaxOutstandingCommands = 64

// OutstandingCommand is a command sent to Grbl still waiting for its ok / error:N response.
type OutstandingCommand struct {
	Seq     uint64
	Command string
	SentAt  time.Time
	doneCh  chan error
}

// Done returns a channel which receives the command result exactly once: nil on ok, a
// *ProtocolError on error:N or ErrCommandDropped if no response will arrive.
func (c *OutstandingCommand) Done() <-chan error {
	return c.doneCh
}

func (c *OutstandingCommand) resolve(err error) {
	c.doneCh <- err
	close(c.doneCh)
}

// AckResolution tells whether a response matched a command we sent (self) or not (external).
type AckResolution struct {
	// Command is the oldest outstanding command, or nil for an external response.
	Command *OutstandingCommand
	// Err is set for error:N responses.
	Err *ProtocolError
}

// External is true when the response did not correspond to any command sent by us, meaning
// something else is talking to the controller.
func (r AckResolution) External() bool {
	return r.Command == nil
}

func (r AckResolution) String() string {
	if r.External() {
		return "ExternalAck"
	}
	return fmt.Sprintf("SelfAck(%#v)", r.Command.Command)
}

// Correlator matches each ok / error:N response to the oldest command not yet responded to.
// Grbl answers every line with exactly one of them, in order.
type Correlator struct {
	max     int
	nextSeq uint64
	fifo    []*OutstandingCommand
}

func NewCorrelator(max int) *Correlator {
	if max <= 0 {
		max = DefaultMaxOutstandingCommands
	}
	return &Correlator{max: max}
}

// Record must be called for every command, before it is written.
func (c *Correlator) Record(command string, now time.Time) (*OutstandingCommand, error) {
	if len(c.fifo) >= c.max {
		return nil, fmt.Errorf("%w: %d", ErrTooManyOutstandingCommands, len(c.fifo))
	}
	c.nextSeq++
	outstandingCommand := &OutstandingCommand{
		Seq:     c.nextSeq,
		Command: command,
		SentAt:  now,
		doneCh:  make(chan error, 1),
	}
	c.fifo = append(c.fifo, outstandingCommand)
	return outstandingCommand, nil
}

func (c *Correlator) pop() *OutstandingCommand {
	if len(c.fifo) == 0 {
		return nil
	}
	outstandingCommand := c.fifo[0]
	c.fifo[0] = nil
	c.fifo = c.fifo[1:]
	if len(c.fifo) == 0 {
		c.fifo = nil
	}
	return outstandingCommand
}

// ResolveAck is called for each ok.
func (c *Correlator) ResolveAck() AckResolution {
	outstandingCommand := c.pop()
	if outstandingCommand != nil {
		outstandingCommand.resolve(nil)
	}
	return AckResolution{Command: outstandingCommand}
}

// ResolveError is called for each error:N.
func (c *Correlator) ResolveError(code int) AckResolution {
	description, remedy := grbl.Translate(grbl.CodeKindError, code)
	protocolError := &ProtocolError{
		Code:        code,
		Description: description,
		Remedy:      remedy,
	}
	outstandingCommand := c.pop()
	if outstandingCommand != nil {
		protocolError.Command = outstandingCommand.Command
		outstandingCommand.resolve(protocolError)
	}
	return AckResolution{Command: outstandingCommand, Err: protocolError}
}

// Clear drops all outstanding commands, resolving them with ErrCommandDropped wrapping reason.
// It returns how many were dropped.
func (c *Correlator) Clear(reason error) int {
	n := len(c.fifo)
	for _, outstandingCommand := range c.fifo {
		outstandingCommand.resolve(fmt.Errorf("%w: %w", ErrCommandDropped, reason))
	}
	c.fifo = nil
	return n
}

func (c *Correlator) Len() int {
	return len(c.fifo)
}

// Any returns true if any outstanding command matches fn.
func (c *Correlator) Any(fn func(command string) bool) bool {
	for _, outstandingCommand := range c.fifo {
		if fn(outstandingCommand.Command) {
			return true
		}
	}
	return false
}
