package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	b := NewBroker[int]()
	require.Equal(t, 0, b.Publish(1))

	a := b.Subscribe("a", 1)
	c := b.Subscribe("c", 2)

	require.Equal(t, 2, b.Publish(1))
	require.Equal(t, 1, b.Publish(2))
	require.Equal(t, uint64(1), b.Dropped("a"))
	require.Equal(t, uint64(0), b.Dropped("c"))

	require.Equal(t, 1, <-a)
	require.Equal(t, 1, <-c)
	require.Equal(t, 2, <-c)

	b.Unsubscribe("a")
	_, ok := <-a
	require.False(t, ok)
	require.Equal(t, 1, b.Publish(3))

	b.Close()
	require.Equal(t, 3, <-c)
	_, ok = <-c
	require.False(t, ok)

	_, ok = <-b.Subscribe("late", 1)
	require.False(t, ok)
	require.Equal(t, 0, b.Publish(4))
}

func TestBrokerResubscribe(t *testing.T) {
	b := NewBroker[string]()
	first := b.Subscribe("x", 1)
	second := b.Subscribe("x", 1)
	_, ok := <-first
	require.False(t, ok)
	require.Equal(t, 1, b.Publish("hi"))
	require.Equal(t, "hi", <-second)
}
