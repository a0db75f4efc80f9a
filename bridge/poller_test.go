package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollerActivity(t *testing.T) {
	options := DefaultPollerOptions
	options.HeartbeatInterval = 0
	p := NewPoller(options)
	t0 := time.Unix(100, 0)

	p.MarkActivity(t0)
	require.False(t, p.ShouldPoll(t0.Add(time.Second)), "not connected")

	p.Start()
	require.False(t, p.ShouldPoll(t0), "no activity")
	p.MarkActivity(t0)
	require.False(t, p.ShouldPoll(t0.Add(149*time.Millisecond)), "activity too recent")
	require.True(t, p.ShouldPoll(t0.Add(150*time.Millisecond)))

	p.MarkStatusRequest(t0.Add(150 * time.Millisecond))
	require.False(t, p.ShouldPoll(t0.Add(249*time.Millisecond)), "min interval")
	require.True(t, p.ShouldPoll(t0.Add(250*time.Millisecond)))

	require.True(t, p.ShouldPoll(t0.Add(3*time.Second)))
	require.False(t, p.ShouldPoll(t0.Add(3*time.Second+time.Millisecond)), "activity window over")

	// Activity clock never goes backwards.
	p.MarkActivity(t0.Add(-time.Second))
	require.Equal(t, t0, p.LastActivity())
}

func TestPollerHeartbeat(t *testing.T) {
	p := NewPoller(DefaultPollerOptions)
	t0 := time.Unix(100, 0)
	p.Start()

	require.True(t, p.ShouldPoll(t0), "first request")
	p.MarkStatusRequest(t0)
	require.False(t, p.ShouldPoll(t0.Add(999*time.Millisecond)))
	require.True(t, p.ShouldPoll(t0.Add(time.Second)))
}

func TestPollerStatusRequestGuard(t *testing.T) {
	p := NewPoller(DefaultPollerOptions)
	t0 := time.Unix(100, 0)
	p.Start()

	require.True(t, p.StatusRequestAllowed(t0))
	require.True(t, p.NextStatusRequestAllowed().IsZero())
	p.MarkStatusRequest(t0)
	require.False(t, p.StatusRequestAllowed(t0.Add(50*time.Millisecond)))
	require.Equal(t, t0.Add(100*time.Millisecond), p.NextStatusRequestAllowed())
	require.True(t, p.StatusRequestAllowed(t0.Add(100*time.Millisecond)))

	p.Reset()
	require.False(t, p.StatusRequestAllowed(t0.Add(time.Second)))
}
