package tui

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LevelFromHandler writes records with its Handler, but takes the enabled level from another one,
// so the logs panel shows what the console logger would. Once stopped, it drops every record:
// the panel can't be drawn after the app stops.
type LevelFromHandler struct {
	slog.Handler
	levelHandler slog.Handler
	stopped      *atomic.Bool
}

func NewLevelFromHandler(handler, levelHandler slog.Handler) *LevelFromHandler {
	return &LevelFromHandler{
		Handler:      handler,
		levelHandler: levelHandler,
		stopped:      &atomic.Bool{},
	}
}

func (h *LevelFromHandler) Stop() {
	h.stopped.Store(true)
}

func (h *LevelFromHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.stopped.Load() && h.levelHandler.Enabled(ctx, level)
}

func (h *LevelFromHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.stopped.Load() {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *LevelFromHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelFromHandler{
		Handler:      h.Handler.WithAttrs(attrs),
		levelHandler: h.levelHandler.WithAttrs(attrs),
		stopped:      h.stopped,
	}
}

func (h *LevelFromHandler) WithGroup(name string) slog.Handler {
	return &LevelFromHandler{
		Handler:      h.Handler.WithGroup(name),
		levelHandler: h.levelHandler.WithGroup(name),
		stopped:      h.stopped,
	}
}
