package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gorilla/websocket"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/grbl"
)

var wsWriteTimeout = 10 * time.Second
var wsReadLimit int64 = 64 * 1024

// WebSocketRequest is sent by clients: either a command or a real-time command name.
type WebSocketRequest struct {
	Command  string `json:"command,omitempty"`
	RealTime string `json:"real_time,omitempty"`
}

type WebSocketMessageType string

var WebSocketMessageTypeSnapshot WebSocketMessageType = "snapshot"
var WebSocketMessageTypeEvent WebSocketMessageType = "event"
var WebSocketMessageTypeResult WebSocketMessageType = "result"

// WebSocketMessage is sent to clients.
type WebSocketMessage struct {
	Type     WebSocketMessageType `json:"type"`
	Snapshot *bridge.Snapshot     `json:"snapshot,omitempty"`
	Event    *bridge.Event        `json:"event,omitempty"`
	Request  *WebSocketRequest    `json:"request,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func (s *Server) handleWebSocketRequest(ctx context.Context, data []byte) WebSocketMessage {
	result := WebSocketMessage{Type: WebSocketMessageTypeResult}
	var request WebSocketRequest
	if err := json.Unmarshal(data, &request); err != nil {
		result.Error = fmt.Sprintf("invalid request: %s", err)
		return result
	}
	result.Request = &request

	var err error
	switch {
	case request.Command != "" && request.RealTime != "":
		err = errors.New("command and real_time are mutually exclusive")
	case request.Command != "":
		err = s.bridge.Send(ctx, request.Command)
	case request.RealTime != "":
		var realTimeCommand grbl.RealTimeCommand
		realTimeCommand, err = grbl.NewRealTimeCommandFromName(request.RealTime)
		if err == nil {
			err = s.bridge.SendRealTimeCommand(ctx, realTimeCommand)
		}
	default:
		err = errors.New("empty request")
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (s *Server) writeWebSocket(conn *websocket.Conn, message WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(message)
}

// handleWebSocket streams snapshots and events to the client, and sends the commands it receives.
// Commands are not waited for: their outcome is seen in the event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("WebSocket %d", s.wsID.Add(1))
	ctx, logger := log.MustWithGroup(r.Context(), name)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Upgrade failed", "err", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("Close failed", "err", err)
		}
	}()
	logger.Info("Connected")

	snapshots := s.bridge.Snapshots.Subscribe(name, 16)
	defer s.bridge.Snapshots.Unsubscribe(name)
	events := s.bridge.Events.Subscribe(name, 256)
	defer s.bridge.Events.Unsubscribe(name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan WebSocketMessage)
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("Read failed", "err", err)
				}
				return
			}
			result := s.handleWebSocketRequest(ctx, data)
			select {
			case resultCh <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	snapshot := s.bridge.CurrentState()
	if err := s.writeWebSocket(conn, WebSocketMessage{Type: WebSocketMessageTypeSnapshot, Snapshot: &snapshot}); err != nil {
		logger.Warn("Write failed", "err", err)
		return
	}

	for {
		var message WebSocketMessage
		select {
		case <-ctx.Done():
			logger.Info("Disconnected")
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			message = WebSocketMessage{Type: WebSocketMessageTypeSnapshot, Snapshot: &snapshot}
		case event, ok := <-events:
			if !ok {
				return
			}
			message = WebSocketMessage{Type: WebSocketMessageTypeEvent, Event: &event}
		case message = <-resultCh:
		}
		if err := s.writeWebSocket(conn, message); err != nil {
			logger.Warn("Write failed", "err", err)
			return
		}
	}
}
