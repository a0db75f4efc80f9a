package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/fornellas/grblbridge/grbl"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) call(name string) error {
	r.calls = append(r.calls, name)
	return r.err
}

func (r *recorder) Home(ctx context.Context) error          { return r.call("home") }
func (r *recorder) Unlock(ctx context.Context) error        { return r.call("unlock") }
func (r *recorder) RequestStatus(ctx context.Context) error { return r.call("status") }
func (r *recorder) CancelJog(ctx context.Context) error     { return r.call("jog-cancel") }
func (r *recorder) EmergencyStop(ctx context.Context) error { return r.call("estop") }
func (r *recorder) SendRealTimeCommand(ctx context.Context, realTimeCommand grbl.RealTimeCommand) error {
	return r.call(realTimeCommand.Name())
}
func (r *recorder) Press(ctx context.Context, axis grbl.Axis, direction int, now time.Time) error {
	return r.call(fmt.Sprintf("press %s %d", axis, direction))
}
func (r *recorder) Abort() { r.calls = append(r.calls, "abort") }

func TestKeyHandler(t *testing.T) {
	ctx := log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
	now := func() time.Time { return time.Unix(0, 0) }

	for _, tc := range []struct {
		key   tcell.Key
		calls []string
	}{
		{tcell.KeyLeft, []string{"press X -1"}},
		{tcell.KeyRight, []string{"press X 1"}},
		{tcell.KeyUp, []string{"press Y 1"}},
		{tcell.KeyDown, []string{"press Y -1"}},
		{tcell.KeyPgUp, []string{"press Z 1"}},
		{tcell.KeyPgDn, []string{"press Z -1"}},
		{tcell.KeyF1, []string{"home"}},
		{tcell.KeyF2, []string{"unlock"}},
		{tcell.KeyF3, []string{"status"}},
		{tcell.KeyEscape, []string{"abort", "jog-cancel"}},
		{tcell.KeyF12, []string{"abort", "estop"}},
		{tcell.KeyCtrlX, []string{"abort", "reset"}},
	} {
		t.Run(strings.Join(tc.calls, " "), func(t *testing.T) {
			r := &recorder{}
			keyHandler := NewKeyHandler(r, r, now)
			require.True(t, keyHandler.Handle(ctx, tcell.NewEventKey(tc.key, 0, tcell.ModNone)))
			require.Equal(t, tc.calls, r.calls)
		})
	}

	t.Run("unbound", func(t *testing.T) {
		r := &recorder{}
		keyHandler := NewKeyHandler(r, r, now)
		require.False(t, keyHandler.Handle(ctx, tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone)))
		require.Empty(t, r.calls)
	})

	t.Run("error", func(t *testing.T) {
		r := &recorder{err: errors.New("disconnected")}
		keyHandler := NewKeyHandler(r, r, now)
		require.True(t, keyHandler.Handle(ctx, tcell.NewEventKey(tcell.KeyF1, 0, tcell.ModNone)))
		require.Equal(t, []string{"home"}, r.calls)
	})
}
