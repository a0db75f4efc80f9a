package bridge

import (
	"time"

	"github.com/fornellas/grblbridge/grbl"
)

// Snapshot is a copy of the bridge state, safe to use from any goroutine.
type Snapshot struct {
	Connected            bool              `json:"connected"`
	MachineState         grbl.MachineState `json:"machine_state"`
	MachinePosition      *grbl.Coordinates `json:"machine_position"`
	WorkPosition         *grbl.Coordinates `json:"work_position"`
	WorkCoordinateOffset *grbl.Coordinates `json:"work_coordinate_offset"`
	Alarm                *AlarmCondition   `json:"alarm"`
	Homing               HomingState       `json:"homing"`
	LastError            *ErrorCondition   `json:"last_error"`
	ContinuousJog        bool              `json:"continuous_jog"`
	OutstandingCommands  int               `json:"outstanding_commands"`
	LastActivity         time.Time         `json:"last_activity"`
	Time                 time.Time         `json:"time"`
}

type EventKind string

var EventKindConnected EventKind = "connected"
var EventKindDisconnected EventKind = "disconnected"
var EventKindCommandSent EventKind = "command_sent"
var EventKindRealTimeCommandSent EventKind = "real_time_command_sent"
var EventKindFrameReceived EventKind = "frame_received"
var EventKindFramesLost EventKind = "frames_lost"
var EventKindExternalActivity EventKind = "external_activity"
var EventKindProtocolError EventKind = "protocol_error"
var EventKindAlarm EventKind = "alarm"
var EventKindAlarmCleared EventKind = "alarm_cleared"
var EventKindHomingStarted EventKind = "homing_started"
var EventKindHomingCompleted EventKind = "homing_completed"
var EventKindHomingTimedOut EventKind = "homing_timed_out"
var EventKindControllerReset EventKind = "controller_reset"

// Event is something that happened, for presentation.
type Event struct {
	Kind        EventKind `json:"kind"`
	Time        time.Time `json:"time"`
	Text        string    `json:"text,omitempty"`
	Code        int       `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
	Remedy      string    `json:"remedy,omitempty"`
}

func (e Event) String() string {
	if e.Text == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Text
}

// outbox collects what must be published once the state lock is released.
type outbox struct {
	events   []Event
	snapshot bool
}

func (o *outbox) event(kind EventKind, now time.Time, text string) *Event {
	o.events = append(o.events, Event{Kind: kind, Time: now, Text: text})
	return &o.events[len(o.events)-1]
}

func (o *outbox) change(change StateChange) {
	if change.Changed() {
		o.snapshot = true
	}
}
