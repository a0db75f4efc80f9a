package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	s := NewScheduler()
	t0 := time.Unix(0, 0)

	s.Schedule("b", t0.Add(20*time.Millisecond))
	s.Schedule("a", t0.Add(10*time.Millisecond))
	s.Schedule("c", t0.Add(time.Second))
	require.Equal(t, 3, s.Len())

	require.Empty(t, s.Due(t0))
	require.Equal(t, []string{"a", "b"}, s.Due(t0.Add(20*time.Millisecond)))
	require.Empty(t, s.Due(t0.Add(20*time.Millisecond)))

	s.Schedule("c", t0.Add(2*time.Second))
	at, ok := s.Pending("c")
	require.True(t, ok)
	require.Equal(t, t0.Add(2*time.Second), at)
	require.Empty(t, s.Due(t0.Add(time.Second)))

	s.Cancel("c")
	_, ok = s.Pending("c")
	require.False(t, ok)

	s.Schedule("d", t0)
	require.Equal(t, 1, s.Clear())
	require.Empty(t, s.Due(t0.Add(time.Hour)))
}
