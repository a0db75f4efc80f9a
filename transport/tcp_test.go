package transport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func TestTCPPortReadTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer func() { require.NoError(t, remote.Close()) }()
	port := NewTCPPort(local)
	defer func() { require.NoError(t, port.Close()) }()

	require.NoError(t, port.SetReadTimeout(10*time.Millisecond))
	buf := make([]byte, 8)
	n, err := port.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)

	go func() {
		_, _ = remote.Write([]byte("ok\n"))
	}()
	require.NoError(t, port.SetReadTimeout(time.Second))
	n, err = port.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(buf[:n]))

	require.ErrorIs(t, port.SetMode(NewMode(DefaultBaudRate)), ErrNotSupported)
}

func TestDialTCP(t *testing.T) {
	ctx := testContext(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, listener.Close()) }()

	acceptedCh := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			acceptedCh <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		_, _ = io.ReadFull(conn, buf)
		acceptedCh <- buf
	}()

	openPortFn := TCPOpenPortFn(listener.Addr().String(), time.Second)
	port, err := openPortFn(ctx, NewMode(DefaultBaudRate))
	require.NoError(t, err)
	defer func() { require.NoError(t, port.Close()) }()
	require.NoError(t, port.SetReadTimeout(serial.NoTimeout))

	n, err := port.Write([]byte("$X\n"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("$X\n"), <-acceptedCh)
}

func TestTCPPortReadPeerClosed(t *testing.T) {
	local, remote := net.Pipe()
	port := NewTCPPort(local)
	defer func() { require.NoError(t, port.Close()) }()

	require.NoError(t, remote.Close())
	for _, timeout := range []time.Duration{10 * time.Millisecond, serial.NoTimeout} {
		require.NoError(t, port.SetReadTimeout(timeout))
		_, err := port.Read(make([]byte, 8))
		require.ErrorIs(t, err, io.EOF)
	}
}
