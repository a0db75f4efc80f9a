package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCorrelatorFIFO(t *testing.T) {
	c := NewCorrelator(0)
	now := time.Unix(0, 0)

	first, err := c.Record("G0 X1", now)
	require.NoError(t, err)
	second, err := c.Record("G0 X2", now)
	require.NoError(t, err)
	require.Less(t, first.Seq, second.Seq)
	require.Equal(t, 2, c.Len())

	resolution := c.ResolveAck()
	require.False(t, resolution.External())
	require.Equal(t, "G0 X1", resolution.Command.Command)
	require.Equal(t, `SelfAck("G0 X1")`, resolution.String())
	require.NoError(t, <-first.Done())

	resolution = c.ResolveAck()
	require.Equal(t, "G0 X2", resolution.Command.Command)
	require.NoError(t, <-second.Done())

	resolution = c.ResolveAck()
	require.True(t, resolution.External())
	require.Equal(t, "ExternalAck", resolution.String())
	require.Zero(t, c.Len())
}

func TestCorrelatorResolveError(t *testing.T) {
	c := NewCorrelator(0)
	now := time.Unix(0, 0)

	outstandingCommand, err := c.Record("G5", now)
	require.NoError(t, err)
	_, err = c.Record("G0 X1", now)
	require.NoError(t, err)

	resolution := c.ResolveError(20)
	require.Equal(t, "G5", resolution.Command.Command)
	require.Equal(t, "G5", resolution.Err.Command)
	require.Equal(t, 20, resolution.Err.Code)
	require.NotEmpty(t, resolution.Err.Description)

	err = <-outstandingCommand.Done()
	var protocolError *ProtocolError
	require.True(t, errors.As(err, &protocolError))
	require.Equal(t, 20, protocolError.Code)

	// The next ok belongs to the next command.
	require.Equal(t, "G0 X1", c.ResolveAck().Command.Command)

	resolution = c.ResolveError(9)
	require.True(t, resolution.External())
	require.Equal(t, "", resolution.Err.Command)
}

func TestCorrelatorBounded(t *testing.T) {
	c := NewCorrelator(2)
	now := time.Unix(0, 0)
	_, err := c.Record("a", now)
	require.NoError(t, err)
	_, err = c.Record("b", now)
	require.NoError(t, err)
	_, err = c.Record("c", now)
	require.ErrorIs(t, err, ErrTooManyOutstandingCommands)
	require.Equal(t, 2, c.Len())
}

func TestCorrelatorClear(t *testing.T) {
	c := NewCorrelator(0)
	now := time.Unix(0, 0)
	outstandingCommand, err := c.Record("G0 X1", now)
	require.NoError(t, err)
	require.True(t, c.Any(func(command string) bool { return command == "G0 X1" }))

	require.Equal(t, 1, c.Clear(ErrDisconnected))
	require.Zero(t, c.Len())
	err = <-outstandingCommand.Done()
	require.ErrorIs(t, err, ErrCommandDropped)
	require.ErrorIs(t, err, ErrDisconnected)
	require.True(t, c.ResolveAck().External())
}
