package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/grbl"
)

// fakeGrbl answers each line written to it straight away.
type fakeGrbl struct {
	ctx    context.Context
	bridge *bridge.Bridge

	mu      sync.Mutex
	written bytes.Buffer
}

func (f *fakeGrbl) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.written.Write(p)
	f.mu.Unlock()

	line, ok := strings.CutSuffix(string(p), "\n")
	if !ok {
		return len(p), nil
	}
	response := "ok\n"
	switch line {
	case bridge.StatusRequestCommand:
		response = "<Idle|MPos:1.000,2.000,3.000>\nok\n"
	case "G5":
		response = "error:20\n"
	}
	f.bridge.OnBytesReceived(f.ctx, []byte(response))
	return len(p), nil
}

func (f *fakeGrbl) Take() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.written.String()
	f.written.Reset()
	return s
}

type testServer struct {
	url    string
	bridge *bridge.Bridge
	grbl   *fakeGrbl
}

func startServer(t *testing.T) testServer {
	ctx, cancel := context.WithCancel(log.WithLogger(t.Context(), slog.New(slog.DiscardHandler)))

	options := bridge.DefaultOptions
	options.Poller.HeartbeatInterval = 0
	b := bridge.NewBridge(options)
	fake := &fakeGrbl{ctx: ctx, bridge: b}
	b.Attach(ctx, fake)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(ctx, b, DefaultOptions)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	return testServer{
		url:    "http://" + listener.Addr().String(),
		bridge: b,
		grbl:   fake,
	}
}

func post(t *testing.T, url, body string) (int, []byte) {
	response, err := http.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { require.NoError(t, response.Body.Close()) }()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(response.Body)
	require.NoError(t, err)
	return response.StatusCode, buf.Bytes()
}

func TestServerState(t *testing.T) {
	s := startServer(t)

	response, err := http.Get(s.url + "/api/state")
	require.NoError(t, err)
	defer func() { require.NoError(t, response.Body.Close()) }()
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, "application/json", response.Header.Get("Content-Type"))
	var snapshot bridge.Snapshot
	require.NoError(t, json.NewDecoder(response.Body).Decode(&snapshot))
	require.True(t, snapshot.Connected)
}

func TestServerCommand(t *testing.T) {
	s := startServer(t)

	status, _ := post(t, s.url+"/api/command", "G0 X1\n")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "G0 X1\n", s.grbl.Take())

	status, body := post(t, s.url+"/api/command", "G5")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	var errResponse errorResponse
	require.NoError(t, json.Unmarshal(body, &errResponse))
	require.Equal(t, 20, errResponse.Code)
	require.NotEmpty(t, errResponse.Description)

	status, _ = post(t, s.url+"/api/command", "  ")
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = post(t, s.url+"/api/command", "G0 X1\nG0 X2")
	require.Equal(t, http.StatusBadRequest, status)

	response, err := http.Get(s.url + "/api/command")
	require.NoError(t, err)
	require.NoError(t, response.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)

	s.bridge.OnDisconnect(s.grbl.ctx)
	status, _ = post(t, s.url+"/api/command", "G0 X1")
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestServerActions(t *testing.T) {
	s := startServer(t)

	status, _ := post(t, s.url+"/api/realtime/estop", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "!", s.grbl.Take())

	status, _ = post(t, s.url+"/api/realtime/jog-cancel", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "\x85", s.grbl.Take())

	status, _ = post(t, s.url+"/api/realtime/bogus", "")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = post(t, s.url+"/api/unlock", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "$X\n", s.grbl.Take())

	status, _ = post(t, s.url+"/api/home", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "$H\n", s.grbl.Take())
}

func TestServerJog(t *testing.T) {
	s := startServer(t)

	status, _ := post(t, s.url+"/api/jog/x/1/press", "")
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, s.url+"/api/jog/x/1/release", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "$J=G91G21X1F1000\n", s.grbl.Take())

	status, _ = post(t, s.url+"/api/jog/x/2/press", "")
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = post(t, s.url+"/api/jog/a/1/press", "")
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = post(t, s.url+"/api/jog/x/1/hold", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestServerStateStream(t *testing.T) {
	s := startServer(t)

	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		for {
			select {
			case <-doneCh:
				return
			case <-time.After(10 * time.Millisecond):
				s.bridge.ClearError()
			}
		}
	}()

	response, err := http.Get(s.url + StateStreamPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, response.Body.Close()) }()
	require.Equal(t, http.StatusOK, response.StatusCode)

	scanner := bufio.NewScanner(response.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var snapshot bridge.Snapshot
		require.NoError(t, json.Unmarshal([]byte(data), &snapshot))
		require.True(t, snapshot.Connected)
		return
	}
	t.Fatal("stream ended", scanner.Err())
}

func TestServerWebSocket(t *testing.T) {
	s := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.url, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, conn.Close()) }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message WebSocketMessage
	require.NoError(t, conn.ReadJSON(&message))
	require.Equal(t, WebSocketMessageTypeSnapshot, message.Type)
	require.True(t, message.Snapshot.Connected)

	readResult := func() WebSocketMessage {
		for {
			var message WebSocketMessage
			require.NoError(t, conn.ReadJSON(&message))
			if message.Type == WebSocketMessageTypeResult {
				return message
			}
		}
	}

	require.NoError(t, conn.WriteJSON(WebSocketRequest{Command: "G0 X1"}))
	result := readResult()
	require.Empty(t, result.Error)
	require.Equal(t, "G0 X1", result.Request.Command)
	require.Equal(t, "G0 X1\n", s.grbl.Take())

	require.NoError(t, conn.WriteJSON(WebSocketRequest{RealTime: grbl.RealTimeCommandFeedHold.Name()}))
	require.Empty(t, readResult().Error)
	require.Equal(t, "!", s.grbl.Take())

	require.NoError(t, conn.WriteJSON(WebSocketRequest{RealTime: "bogus"}))
	require.NotEmpty(t, readResult().Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	require.Contains(t, readResult().Error, "invalid request")
}
