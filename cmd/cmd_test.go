package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestReadCommands(t *testing.T) {
	commands, err := readCommands(strings.NewReader("G21\n\n  G0 X1  \r\n$H"))
	require.NoError(t, err)
	require.Equal(t, []string{"G21", "G0 X1", "$H"}, commands)
}

func TestGetSendCommands(t *testing.T) {
	t.Cleanup(ResetFlags)

	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("G21\nG90\n"))

	commands, err := getSendCommands(cmd, []string{"$X"})
	require.NoError(t, err)
	require.Equal(t, []string{"$X"}, commands)

	commands, err = getSendCommands(cmd, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"G21", "G90"}, commands)

	sendFile = filepath.Join(t.TempDir(), "commands.nc")
	require.NoError(t, os.WriteFile(sendFile, []byte("G0 X1\n"), 0644))
	commands, err = getSendCommands(cmd, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"G0 X1"}, commands)

	_, err = getSendCommands(cmd, []string{"$X"})
	require.Error(t, err)
}

func TestGetOpenPortFn(t *testing.T) {
	t.Cleanup(ResetFlags)

	portName = "/dev/ttyUSB0"
	address = "localhost:9999"
	_, err := GetOpenPortFn()
	require.ErrorContains(t, err, "simultaneously")

	address = ""
	openPortFn, err := GetOpenPortFn()
	require.NoError(t, err)
	require.NotNil(t, openPortFn)
}

func TestEnv(t *testing.T) {
	t.Cleanup(ResetFlags)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GRBLBRIDGE_BAUD_RATE=9600\n"), 0644))
	t.Setenv("GRBLBRIDGE_BAUD_RATE", "")
	require.NoError(t, os.Unsetenv("GRBLBRIDGE_BAUD_RATE"))

	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing"), false))
	require.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing"), true))
	require.NoError(t, loadEnvFile(path, true))

	cmd := &cobra.Command{}
	AddPortFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, bindEnv(cmd))
	require.Equal(t, 9600, baudRate)

	t.Setenv("GRBLBRIDGE_BAUD_RATE", "fast")
	require.NoError(t, cmd.Flags().Set("baud-rate", "115200"))
	require.NoError(t, bindEnv(cmd), "flags set explicitly are not overridden")
	require.Equal(t, 115200, baudRate)
}

func TestPipe(t *testing.T) {
	ctx := log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))

	client, server := net.Pipe()
	port, grbl := net.Pipe()

	errCh := make(chan error, 1)
	go func() { errCh <- pipe(ctx, server, port) }()

	_, err := client.Write([]byte("?"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = io.ReadFull(grbl, buf)
	require.NoError(t, err)
	require.Equal(t, "?", string(buf))

	_, err = grbl.Write([]byte("ok\n"))
	require.NoError(t, err)
	buf = make([]byte, 3)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(buf))

	require.NoError(t, grbl.Close())
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("pipe did not return")
	}

	ctx, cancel := context.WithCancel(ctx)
	client, server = net.Pipe()
	port, _ = net.Pipe()
	go func() { errCh <- pipe(ctx, server, port) }()
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipe did not return")
	}
	require.NoError(t, client.Close())
}

func TestOutputValue(t *testing.T) {
	t.Cleanup(ResetFlags)

	var buf strings.Builder
	require.Equal(t, "(STDOUT)", outputValue.String())
	w, err := outputValue.WriterCloser(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, "{}", buf.String())

	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, outputValue.Set(path))
	require.Equal(t, path, outputValue.String())
	w, err = outputValue.WriterCloser(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}
