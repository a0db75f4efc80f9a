package grbl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRealTimeCommand(t *testing.T) {
	rtc, err := NewRealTimeCommand(0x85)
	require.NoError(t, err)
	require.Equal(t, RealTimeCommandJogCancel, rtc)
	require.Equal(t, "Jog Cancel", rtc.String())

	_, err = NewRealTimeCommand('a')
	require.ErrorIs(t, err, ErrNotRealTimeCommand)

	rtc, err = NewRealTimeCommandFromName("estop")
	require.NoError(t, err)
	require.Equal(t, RealTimeCommandFeedHold, rtc)
	require.Equal(t, "estop", rtc.Name())

	_, err = NewRealTimeCommandFromName("bogus")
	require.ErrorIs(t, err, ErrNotRealTimeCommand)
}
