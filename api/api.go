package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/fornellas/slogxt/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/gesture"
	"github.com/fornellas/grblbridge/grbl"
	"github.com/fornellas/grblbridge/worker_manager"
)

var StateStreamPath = "/events/state"
var LogStreamPath = "/events/log"

var maxCommandSize int64 = 4096

type Options struct {
	Gesture      gesture.Options
	TickInterval time.Duration
	// How long to wait for in flight requests when shutting down.
	ShutdownTimeout time.Duration
}

var DefaultOptions = Options{
	Gesture:         gesture.DefaultOptions,
	TickInterval:    50 * time.Millisecond,
	ShutdownTimeout: 5 * time.Second,
}

// Server exposes a Bridge over HTTP: a JSON API, server sent event streams of state and events,
// and a WebSocket console.
type Server struct {
	options   Options
	bridge    *bridge.Bridge
	debouncer *gesture.Debouncer
	router    *mux.Router
	sse       *sse.Server
	upgrader  websocket.Upgrader
	wsID      atomic.Uint64
}

func NewServer(ctx context.Context, b *bridge.Bridge, options Options) *Server {
	logger := log.MustLogger(ctx)
	if options.TickInterval <= 0 {
		options.TickInterval = DefaultOptions.TickInterval
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = DefaultOptions.ShutdownTimeout
	}
	s := &Server{
		options:   options,
		bridge:    b,
		debouncer: gesture.NewDebouncer(b, options.Gesture),
		sse: sse.NewServer(&sse.Options{
			Logger: slog.NewLogLogger(logger.WithGroup("SSE").Handler(), slog.LevelDebug),
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	router.HandleFunc("/api/command", s.handleCommand).Methods(http.MethodPost)
	router.HandleFunc("/api/realtime/{name}", s.handleRealTimeCommand).Methods(http.MethodPost)
	router.HandleFunc("/api/home", s.handleHome).Methods(http.MethodPost)
	router.HandleFunc("/api/unlock", s.handleUnlock).Methods(http.MethodPost)
	router.HandleFunc("/api/jog/{axis}/{direction}/{action:press|release}", s.handleJog).Methods(http.MethodPost)
	router.Handle(StateStreamPath, s.sse).Methods(http.MethodGet)
	router.Handle(LogStreamPath, s.sse).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	s.router = router

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, logger := log.MustWithGroupAttrs(
			r.Context(),
			"HTTP",
			"method", r.Method,
			"path", r.URL.Path,
			"remote-addr", r.RemoteAddr,
		)
		logger.Debug("Request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorResponse struct {
	Error       string `json:"error"`
	Code        int    `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Remedy      string `json:"remedy,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.MustLogger(ctx).Warn("Failed to write response", "err", err)
	}
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, err error) {
	writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	response := errorResponse{Error: err.Error()}
	var protocolError *bridge.ProtocolError
	switch {
	case errors.As(err, &protocolError):
		status = http.StatusUnprocessableEntity
		response.Code = protocolError.Code
		response.Description = protocolError.Description
		response.Remedy = protocolError.Remedy
	case errors.Is(err, bridge.ErrDisconnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrTooManyOutstandingCommands):
		status = http.StatusTooManyRequests
	case errors.Is(err, bridge.ErrCommandDropped):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	log.MustLogger(ctx).Warn("Request failed", "status", status, "err", err)
	writeJSON(ctx, w, status, response)
}

func (s *Server) writeState(ctx context.Context, w http.ResponseWriter) {
	writeJSON(ctx, w, http.StatusOK, s.bridge.CurrentState())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(r.Context(), w)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCommandSize))
	if err != nil {
		writeBadRequest(ctx, w, fmt.Errorf("failed to read body: %w", err))
		return
	}
	command := strings.TrimSpace(string(data))
	if command == "" {
		writeBadRequest(ctx, w, errors.New("empty command"))
		return
	}
	if strings.ContainsAny(command, "\r\n") {
		writeBadRequest(ctx, w, errors.New("only one command per request is accepted"))
		return
	}
	if err := s.bridge.SendWait(ctx, command); err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeState(ctx, w)
}

func (s *Server) handleRealTimeCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realTimeCommand, err := grbl.NewRealTimeCommandFromName(mux.Vars(r)["name"])
	if err != nil {
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if realTimeCommand == grbl.RealTimeCommandFeedHold {
		err = s.bridge.EmergencyStop(ctx)
	} else {
		err = s.bridge.SendRealTimeCommand(ctx, realTimeCommand)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeState(ctx, w)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.bridge.Home(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeState(ctx, w)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.bridge.Unlock(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeState(ctx, w)
}

func (s *Server) handleJog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	axis, err := grbl.NewAxis(vars["axis"])
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	direction, err := strconv.Atoi(vars["direction"])
	if err != nil || (direction != 1 && direction != -1) {
		writeBadRequest(ctx, w, fmt.Errorf("invalid direction %#v: must be 1 or -1", vars["direction"]))
		return
	}

	now := s.bridge.Now()
	switch vars["action"] {
	case "press":
		err = s.debouncer.Press(ctx, axis, direction, now)
	case "release":
		err = s.debouncer.Release(ctx, now)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	s.writeState(ctx, w)
}

// streamWorker publishes everything received from ch to the SSE stream at path.
func streamWorker[T any](ctx context.Context, sseServer *sse.Server, path string, ch <-chan T) error {
	logger := log.MustLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				logger.Error("Failed to marshal", "err", err)
				continue
			}
			sseServer.SendMessage(path, sse.SimpleMessage(string(data)))
		}
	}
}

func (s *Server) gestureWorker(ctx context.Context) error {
	logger := log.MustLogger(ctx)
	ticker := time.NewTicker(s.options.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.debouncer.Tick(ctx, s.bridge.Now()); err != nil {
				logger.Warn("Jog gesture failed", "err", err)
			}
		}
	}
}

func (s *Server) httpWorker(listener net.Listener) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger := log.MustLogger(ctx)
		httpServer := &http.Server{
			Handler:     s,
			BaseContext: func(net.Listener) context.Context { return ctx },
			ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}
		errCh := make(chan error, 1)
		go func() {
			errCh <- httpServer.Serve(listener)
		}()
		logger.Info("Serving", "address", listener.Addr().String())

		select {
		case err := <-errCh:
			return fmt.Errorf("HTTP server failed: %w", err)
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		s.sse.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) {
			err = errors.Join(err, serveErr)
		}
		if err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return ctx.Err()
	}
}

// Run serves HTTP on listener until ctx is done.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	ctx, _ = log.MustWithGroup(ctx, "API")

	snapshots := s.bridge.Snapshots.Subscribe("API SSE", 16)
	defer s.bridge.Snapshots.Unsubscribe("API SSE")
	events := s.bridge.Events.Subscribe("API SSE", 256)
	defer s.bridge.Events.Unsubscribe("API SSE")

	workerManager := worker_manager.NewWorkerManager()
	workerManager.AddWorker("HTTP", s.httpWorker(listener))
	workerManager.AddWorker("State Stream", func(ctx context.Context) error {
		return streamWorker(ctx, s.sse, StateStreamPath, snapshots)
	})
	workerManager.AddWorker("Log Stream", func(ctx context.Context) error {
		return streamWorker(ctx, s.sse, LogStreamPath, events)
	})
	workerManager.AddWorker("Gesture", s.gestureWorker)
	workerManager.Start(ctx)
	<-workerManager.Done()
	return worker_manager.Err(workerManager.Wait(ctx))
}
