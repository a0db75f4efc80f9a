package tui

import (
	"context"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"

	"github.com/fornellas/grblbridge/grbl"
)

// Controller is the part of *bridge.Bridge driven by keys.
type Controller interface {
	Home(ctx context.Context) error
	Unlock(ctx context.Context) error
	RequestStatus(ctx context.Context) error
	CancelJog(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	SendRealTimeCommand(ctx context.Context, realTimeCommand grbl.RealTimeCommand) error
}

// Gesture is the part of *gesture.Debouncer driven by keys.
type Gesture interface {
	Press(ctx context.Context, axis grbl.Axis, direction int, now time.Time) error
	Abort()
}

type jogKey struct {
	axis      grbl.Axis
	direction int
}

var jogKeys = map[tcell.Key]jogKey{
	tcell.KeyLeft:  {grbl.AxisX, -1},
	tcell.KeyRight: {grbl.AxisX, 1},
	tcell.KeyUp:    {grbl.AxisY, 1},
	tcell.KeyDown:  {grbl.AxisY, -1},
	tcell.KeyPgUp:  {grbl.AxisZ, 1},
	tcell.KeyPgDn:  {grbl.AxisZ, -1},
}

// KeysHelp is shown at the bottom of the screen.
var KeysHelp = "←→ X  ↑↓ Y  PgUp/PgDn Z  F1 Home  F2 Unlock  F3 Status  Esc Jog cancel  F12 E-stop  Ctrl+X Reset  Ctrl+C Exit"

type KeyHandler struct {
	controller Controller
	gesture    Gesture
	now        func() time.Time
}

func NewKeyHandler(controller Controller, gesture Gesture, now func() time.Time) *KeyHandler {
	return &KeyHandler{
		controller: controller,
		gesture:    gesture,
		now:        now,
	}
}

// Handle runs the action bound to the key, and returns whether there was one.
func (kh *KeyHandler) Handle(ctx context.Context, event *tcell.EventKey) bool {
	logger := log.MustLogger(ctx)

	var err error
	if jogKey, ok := jogKeys[event.Key()]; ok {
		err = kh.gesture.Press(ctx, jogKey.axis, jogKey.direction, kh.now())
	} else {
		switch event.Key() {
		case tcell.KeyF1:
			err = kh.controller.Home(ctx)
		case tcell.KeyF2:
			err = kh.controller.Unlock(ctx)
		case tcell.KeyF3:
			err = kh.controller.RequestStatus(ctx)
		case tcell.KeyEscape:
			kh.gesture.Abort()
			err = kh.controller.CancelJog(ctx)
		case tcell.KeyF12:
			kh.gesture.Abort()
			err = kh.controller.EmergencyStop(ctx)
		case tcell.KeyCtrlX:
			kh.gesture.Abort()
			err = kh.controller.SendRealTimeCommand(ctx, grbl.RealTimeCommandSoftReset)
		default:
			return false
		}
	}
	if err != nil {
		logger.Error("Key action failed", "key", event.Name(), "err", err)
	}
	return true
}
