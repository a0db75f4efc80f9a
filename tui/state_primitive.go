package tui

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/grbl"
	iFmt "github.com/fornellas/grblbridge/internal/fmt"
)

var coordinateWidth = 9

func getMachineStateColor(state grbl.State) tcell.Color {
	switch state {
	case grbl.StateIdle:
		return tcell.ColorBlack
	case grbl.StateRun:
		return tcell.ColorGreen
	case grbl.StateHold:
		return tcell.ColorYellow
	case grbl.StateJog:
		return tcell.ColorDarkGreen
	case grbl.StateAlarm:
		return tcell.ColorRed
	case grbl.StateDoor:
		return tcell.ColorOrange
	case grbl.StateCheck:
		return tcell.ColorDarkCyan
	case grbl.StateHome:
		return tcell.ColorLightGreen
	case grbl.StateSleep:
		return tcell.ColorDarkBlue
	default:
		return tcell.ColorGray
	}
}

func sprintState(snapshot bridge.Snapshot) string {
	if !snapshot.Connected {
		return "Disconnected\n"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", tview.Escape(string(snapshot.MachineState.State)))
	if subState := snapshot.MachineState.SubStateString(); subState != "" {
		fmt.Fprintf(&buf, "(%s)\n", tview.Escape(subState))
	}
	if snapshot.Homing == bridge.HomingStateHoming {
		fmt.Fprintf(&buf, "[%s]Homing[-]\n", tcell.ColorLightGreen)
	}
	if snapshot.ContinuousJog {
		fmt.Fprintf(&buf, "[%s]Jogging[-]\n", tcell.ColorDarkGreen)
	}
	return buf.String()
}

func sprintStatus(snapshot bridge.Snapshot) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Work\n%s\n", iFmt.SprintCoordinates(snapshot.WorkPosition, coordinateWidth))
	fmt.Fprintf(&buf, "Machine\n%s\n", iFmt.SprintCoordinates(snapshot.MachinePosition, coordinateWidth))

	if snapshot.Alarm != nil {
		fmt.Fprintf(&buf, "\n[%s]Alarm", tcell.ColorRed)
		if !snapshot.Alarm.Unknown() {
			fmt.Fprintf(&buf, ":%d", snapshot.Alarm.Code)
		}
		fmt.Fprintf(&buf, "[-] %s\n", tview.Escape(snapshot.Alarm.Description))
		if snapshot.Alarm.Remedy != "" {
			fmt.Fprintf(&buf, "%s\n", tview.Escape(snapshot.Alarm.Remedy))
		}
	}

	if snapshot.LastError != nil && snapshot.LastError.Kind != grbl.CodeKindAlarm.String() {
		fmt.Fprintf(
			&buf, "\n[%s]%s:%d[-] %s\n",
			tcell.ColorOrange, snapshot.LastError.Kind, snapshot.LastError.Code,
			tview.Escape(snapshot.LastError.Description),
		)
		if snapshot.LastError.Remedy != "" {
			fmt.Fprintf(&buf, "%s\n", tview.Escape(snapshot.LastError.Remedy))
		}
	}

	if snapshot.OutstandingCommands > 0 {
		fmt.Fprintf(&buf, "\nPending: %d\n", snapshot.OutstandingCommands)
	}

	return buf.String()
}

// StatePrimitive shows machine state, positions, alarm and errors.
type StatePrimitive struct {
	*tview.Flex
	app            *tview.Application
	stateTextView  *tview.TextView
	statusTextView *tview.TextView
}

func NewStatePrimitive(app *tview.Application) *StatePrimitive {
	sp := &StatePrimitive{app: app}

	stateTextView := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetWrap(true)
	stateTextView.SetBorder(true).SetTitle("State")
	sp.stateTextView = stateTextView

	statusTextView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	statusTextView.SetBorder(true).SetTitle("Status")
	sp.statusTextView = statusTextView

	flex := tview.NewFlex()
	flex.SetDirection(tview.FlexRow)
	flex.AddItem(stateTextView, 5, 0, false)
	flex.AddItem(statusTextView, 0, 1, false)
	sp.Flex = flex

	return sp
}

// update must be called from the app goroutine.
func (sp *StatePrimitive) update(snapshot bridge.Snapshot) {
	sp.stateTextView.SetBackgroundColor(getMachineStateColor(snapshot.MachineState.State))
	if text := sprintState(snapshot); text != sp.stateTextView.GetText(false) {
		sp.stateTextView.SetText(text)
	}
	if text := sprintStatus(snapshot); text != sp.statusTextView.GetText(false) {
		sp.statusTextView.SetText(text)
	}
}

func (sp *StatePrimitive) Worker(ctx context.Context, initial bridge.Snapshot, snapshotCh <-chan bridge.Snapshot) error {
	sp.app.QueueUpdateDraw(func() { sp.update(initial) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-snapshotCh:
			if !ok {
				return fmt.Errorf("snapshot channel closed")
			}
			sp.app.QueueUpdateDraw(func() { sp.update(snapshot) })
		}
	}
}
