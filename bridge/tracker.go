package bridge

import (
	"time"

	"github.com/fornellas/grblbridge/grbl"
)

var DefaultHomingTimeout = 30 * time.Second

type HomingState string

var HomingStateNotHoming HomingState = "NotHoming"
var HomingStateHoming HomingState = "Homing"

// AlarmCodeUnknown is used when the Alarm state was observed without an ALARM:N message.
var AlarmCodeUnknown = 0

// AlarmCondition is latched on ALARM:N or on an Alarm state, until a status report shows a
// state other than Alarm.
type AlarmCondition struct {
	Code        int       `json:"code"`
	Description string    `json:"description"`
	Remedy      string    `json:"remedy"`
	Since       time.Time `json:"since"`
}

func (a AlarmCondition) Unknown() bool {
	return a.Code == AlarmCodeUnknown
}

// ErrorCondition is the latest error or alarm message translated for the user.
type ErrorCondition struct {
	Kind        string    `json:"kind"`
	Code        int       `json:"code"`
	Description string    `json:"description"`
	Remedy      string    `json:"remedy"`
	At          time.Time `json:"at"`
}

// StateChange summarizes what changed after applying a message. It is informational only.
type StateChange struct {
	MachineState         bool
	MachinePosition      bool
	WorkPosition         bool
	WorkCoordinateOffset bool
	AlarmSet             bool
	AlarmCleared         bool
	HomingStarted        bool
	HomingCompleted      bool
	HomingTimedOut       bool
	Error                bool
	Reset                bool
}

func (c StateChange) Changed() bool {
	return c != StateChange{}
}

// Tracker holds the machine state as reported by Grbl.
type Tracker struct {
	homingTimeout        time.Duration
	machineState         grbl.MachineState
	machinePosition      *grbl.Coordinates
	workPosition         *grbl.Coordinates
	workCoordinateOffset *grbl.Coordinates
	alarm                *AlarmCondition
	homing               HomingState
	homingStartedAt      time.Time
	lastError            *ErrorCondition
}

func NewTracker(homingTimeout time.Duration) *Tracker {
	if homingTimeout <= 0 {
		homingTimeout = DefaultHomingTimeout
	}
	t := &Tracker{homingTimeout: homingTimeout}
	t.Reset()
	return t
}

// Reset forgets everything, as when disconnected.
func (t *Tracker) Reset() {
	t.machineState = grbl.MachineState{State: grbl.StateUnknown}
	t.machinePosition = nil
	t.workPosition = nil
	t.workCoordinateOffset = nil
	t.alarm = nil
	t.homing = HomingStateNotHoming
	t.homingStartedAt = time.Time{}
	t.lastError = nil
}

func coordinatesChanged(a, b *grbl.Coordinates) bool {
	if a == nil || b == nil {
		return a != b
	}
	return *a != *b
}

func (t *Tracker) setMachinePosition(c grbl.Coordinates, change *StateChange) {
	if coordinatesChanged(t.machinePosition, &c) {
		change.MachinePosition = true
	}
	t.machinePosition = &c
}

func (t *Tracker) setWorkPosition(c grbl.Coordinates, change *StateChange) {
	if coordinatesChanged(t.workPosition, &c) {
		change.WorkPosition = true
	}
	t.workPosition = &c
}

func (t *Tracker) setWorkCoordinateOffset(c grbl.Coordinates, change *StateChange) {
	if coordinatesChanged(t.workCoordinateOffset, &c) {
		change.WorkCoordinateOffset = true
	}
	t.workCoordinateOffset = &c
}

func (t *Tracker) setError(kind grbl.CodeKind, code int, now time.Time, change *StateChange) {
	description, remedy := grbl.Translate(kind, code)
	t.lastError = &ErrorCondition{
		Kind:        kind.String(),
		Code:        code,
		Description: description,
		Remedy:      remedy,
		At:          now,
	}
	change.Error = true
}

//gocyclo:ignore
func (t *Tracker) applyStatusReport(m *grbl.StatusReportMessage, now time.Time) StateChange {
	var change StateChange

	// Unknown state tokens keep the previous state.
	if m.MachineState.State != grbl.StateUnknown {
		if m.MachineState.String() != t.machineState.String() {
			change.MachineState = true
		}
		t.machineState = m.MachineState
	}

	if m.WorkCoordinateOffset != nil {
		t.setWorkCoordinateOffset(*m.WorkCoordinateOffset, &change)
	}

	if m.MachinePosition != nil {
		t.setMachinePosition(*m.MachinePosition, &change)
	}

	if m.WorkPosition != nil {
		t.setWorkPosition(*m.WorkPosition, &change)
		if m.MachinePosition == nil && t.workCoordinateOffset != nil {
			t.setMachinePosition(m.WorkPosition.Add(*t.workCoordinateOffset), &change)
		}
	} else if m.MachinePosition != nil && t.workCoordinateOffset != nil {
		t.setWorkPosition(m.MachinePosition.Sub(*t.workCoordinateOffset), &change)
	}

	switch t.machineState.State {
	case grbl.StateAlarm:
		if t.alarm == nil {
			description, remedy := grbl.Translate(grbl.CodeKindAlarm, AlarmCodeUnknown)
			t.alarm = &AlarmCondition{
				Code:        AlarmCodeUnknown,
				Description: description,
				Remedy:      remedy,
				Since:       now,
			}
			change.AlarmSet = true
		}
	case grbl.StateUnknown:
	default:
		if t.alarm != nil {
			t.alarm = nil
			change.AlarmCleared = true
		}
	}

	if t.homing == HomingStateHoming && t.machineState.State == grbl.StateIdle {
		t.homing = HomingStateNotHoming
		t.homingStartedAt = time.Time{}
		change.HomingCompleted = true
	}

	return change
}

func (t *Tracker) applyCoordinateParams(m *grbl.CoordinateParamsMessage) StateChange {
	var change StateChange
	// Only G54 is tracked: offsets of other coordinate systems are ignored.
	if m.System != "G54" || m.Coordinates == nil {
		return change
	}
	t.setWorkCoordinateOffset(*m.Coordinates, &change)
	if t.machinePosition != nil {
		t.setWorkPosition(t.machinePosition.Sub(*t.workCoordinateOffset), &change)
	}
	return change
}

// Apply updates the state from a message received from Grbl.
func (t *Tracker) Apply(message grbl.Message, now time.Time) StateChange {
	var change StateChange
	switch m := message.(type) {
	case *grbl.StatusReportMessage:
		change = t.applyStatusReport(m, now)
	case *grbl.CoordinateParamsMessage:
		change = t.applyCoordinateParams(m)
	case *grbl.ErrorMessage:
		t.setError(grbl.CodeKindError, m.Code, now, &change)
	case *grbl.AlarmMessage:
		t.setError(grbl.CodeKindAlarm, m.Code, now, &change)
		description, remedy := m.Description()
		t.alarm = &AlarmCondition{
			Code:        m.Code,
			Description: description,
			Remedy:      remedy,
			Since:       now,
		}
		change.AlarmSet = true
	case *grbl.WelcomeMessage:
		// Soft-reset aborts homing.
		if t.homing != HomingStateNotHoming {
			t.homing = HomingStateNotHoming
			t.homingStartedAt = time.Time{}
		}
		change.Reset = true
	}
	return change
}

// StartHoming is called when a homing command is sent.
func (t *Tracker) StartHoming(now time.Time) StateChange {
	t.homing = HomingStateHoming
	t.homingStartedAt = now
	return StateChange{HomingStarted: true}
}

// CheckHomingTimeout gives up on homing if no Idle state was observed within the timeout, as
// some controllers do not reply to status queries while homing. A timed out homing goes
// straight back to NotHoming, the timeout is only reported in the returned change.
func (t *Tracker) CheckHomingTimeout(now time.Time) StateChange {
	if t.homing != HomingStateHoming || now.Sub(t.homingStartedAt) < t.homingTimeout {
		return StateChange{}
	}
	t.homing = HomingStateNotHoming
	t.homingStartedAt = time.Time{}
	return StateChange{HomingTimedOut: true}
}

// HomingDeadline returns when homing times out, if homing.
func (t *Tracker) HomingDeadline() (time.Time, bool) {
	if t.homing != HomingStateHoming {
		return time.Time{}, false
	}
	return t.homingStartedAt.Add(t.homingTimeout), true
}

func (t *Tracker) ClearError() {
	t.lastError = nil
}

func (t *Tracker) MachineState() grbl.MachineState {
	return t.machineState
}

func (t *Tracker) Homing() HomingState {
	return t.homing
}

func (t *Tracker) Alarm() *AlarmCondition {
	return t.alarm
}

func copyCoordinates(c *grbl.Coordinates) *grbl.Coordinates {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

// fill copies the tracked state into a snapshot.
func (t *Tracker) fill(snapshot *Snapshot) {
	snapshot.MachineState = t.machineState
	if t.machineState.SubState != nil {
		subState := *t.machineState.SubState
		snapshot.MachineState.SubState = &subState
	}
	snapshot.MachinePosition = copyCoordinates(t.machinePosition)
	snapshot.WorkPosition = copyCoordinates(t.workPosition)
	snapshot.WorkCoordinateOffset = copyCoordinates(t.workCoordinateOffset)
	if t.alarm != nil {
		alarm := *t.alarm
		snapshot.Alarm = &alarm
	}
	snapshot.Homing = t.homing
	if t.lastError != nil {
		lastError := *t.lastError
		snapshot.LastError = &lastError
	}
}
