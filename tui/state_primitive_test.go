package tui

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/grbl"
)

func TestSprintState(t *testing.T) {
	require.Equal(t, "Disconnected\n", sprintState(bridge.Snapshot{}))

	subState := 0
	require.Equal(t, "Hold\n(complete)\n", sprintState(bridge.Snapshot{
		Connected:    true,
		MachineState: grbl.MachineState{State: grbl.StateHold, SubState: &subState},
		Homing:       bridge.HomingStateNotHoming,
	}))

	require.Contains(t, sprintState(bridge.Snapshot{
		Connected:    true,
		MachineState: grbl.MachineState{State: grbl.StateHome},
		Homing:       bridge.HomingStateHoming,
	}), "Homing")
}

func TestSprintStatus(t *testing.T) {
	description, remedy := grbl.Translate(grbl.CodeKindAlarm, 1)
	text := sprintStatus(bridge.Snapshot{
		Connected:       true,
		MachineState:    grbl.MachineState{State: grbl.StateAlarm},
		MachinePosition: &grbl.Coordinates{X: 1, Y: 2, Z: 3},
		Alarm: &bridge.AlarmCondition{
			Code:        1,
			Description: description,
			Remedy:      remedy,
			Since:       time.Unix(0, 0),
		},
		LastError: &bridge.ErrorCondition{
			Kind:        grbl.CodeKindAlarm.String(),
			Code:        1,
			Description: description,
		},
		OutstandingCommands: 2,
	})
	require.Contains(t, text, "Work\nX:        ? Y:        ? Z:        ?\n")
	require.Contains(t, text, "Machine\nX:    1.000 Y:    2.000 Z:    3.000\n")
	require.Contains(t, text, "Alarm:1")
	require.Contains(t, text, description)
	require.Contains(t, text, "Pending: 2")
	require.NotContains(t, text, "alarm:1", "alarm is not repeated as an error")

	text = sprintStatus(bridge.Snapshot{
		LastError: &bridge.ErrorCondition{Kind: grbl.CodeKindError.String(), Code: 20, Description: "Unsupported command"},
	})
	require.Contains(t, text, "error:20")
}

func TestGetMachineStateColor(t *testing.T) {
	require.Equal(t, tcell.ColorRed, getMachineStateColor(grbl.StateAlarm))
	require.Equal(t, tcell.ColorGray, getMachineStateColor(grbl.StateUnknown))
}
