package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is a classified frame received from Grbl.
type Message interface {
	String() string
}

var messageAck = "ok"
var messageErrorPrefix = "error:"
var messageAlarmPrefix = "ALARM:"
var messageWelcomePrefix = "Grbl"

// parseCode extracts the trailing decimal digits of a message, returning 0 when there are none.
func parseCode(message string) int {
	i := len(message)
	for i > 0 && message[i-1] >= '0' && message[i-1] <= '9' {
		i--
	}
	code, err := strconv.Atoi(message[i:])
	if err != nil {
		return 0
	}
	return code
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// Ack
////////////////////////////////////////////////////////////////////////////////////////////////////

// AckMessage is the "ok" response to a line.
type AckMessage struct{}

func (m *AckMessage) String() string {
	return messageAck
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// Error
////////////////////////////////////////////////////////////////////////////////////////////////////

// ErrorMessage is the "error:N" response to a line. Code is 0 when it could not be parsed.
type ErrorMessage struct {
	Message string
	Code    int
}

func (m *ErrorMessage) String() string {
	return m.Message
}

// Description returns the translated error description and remedy.
func (m *ErrorMessage) Description() (string, string) {
	return Translate(CodeKindError, m.Code)
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// Alarm
////////////////////////////////////////////////////////////////////////////////////////////////////

// AlarmMessage is the "ALARM:N" push message. Code is 0 when it could not be parsed.
type AlarmMessage struct {
	Message string
	Code    int
}

func (m *AlarmMessage) String() string {
	return m.Message
}

// Description returns the translated alarm description and remedy.
func (m *AlarmMessage) Description() (string, string) {
	return Translate(CodeKindAlarm, m.Code)
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// StatusReport
////////////////////////////////////////////////////////////////////////////////////////////////////

type State string

var StateIdle State = "Idle"
var StateRun State = "Run"
var StateHold State = "Hold"
var StateJog State = "Jog"
var StateAlarm State = "Alarm"
var StateDoor State = "Door"
var StateCheck State = "Check"
var StateHome State = "Home"
var StateSleep State = "Sleep"
var StateUnknown State = "Unknown"

var knownStates = map[State]bool{
	StateIdle:  true,
	StateRun:   true,
	StateHold:  true,
	StateJog:   true,
	StateAlarm: true,
	StateDoor:  true,
	StateCheck: true,
	StateHome:  true,
	StateSleep: true,
}

type MachineState struct {
	// One of Idle, Run, Hold, Jog, Alarm, Door, Check, Home, Sleep or Unknown.
	State State `json:"state"`
	// Current sub-states are:
	// - `Hold:0` Hold complete. Ready to resume.
	// - `Hold:1` Hold in-progress. Reset will throw an alarm.
	// - `Door:0` Door closed. Ready to resume.
	// - `Door:1` Machine stopped. Door still ajar. Can't resume until closed.
	// - `Door:2` Door opened. Hold (or parking retract) in-progress. Reset will throw an alarm.
	// - `Door:3` Door closed and resuming. Restoring from park, if applicable. Reset will throw an alarm.
	SubState *int `json:"sub_state,omitempty"`
}

// NewMachineState parses the main[:sub] field of a status report. Unknown main states are
// returned as StateUnknown along with an error.
func NewMachineState(dataField string) (MachineState, error) {
	mainStr, subStr, hasSub := strings.Cut(dataField, ":")
	state := State(mainStr)
	if !knownStates[state] {
		return MachineState{State: StateUnknown}, fmt.Errorf("unknown machine state: %#v", dataField)
	}
	machineState := MachineState{State: state}
	if hasSub {
		subState, err := strconv.Atoi(subStr)
		if err != nil {
			return machineState, fmt.Errorf("machine state substate invalid: %#v", dataField)
		}
		machineState.SubState = &subState
	}
	return machineState, nil
}

func (m MachineState) String() string {
	if m.SubState == nil {
		return string(m.State)
	}
	return fmt.Sprintf("%s:%d", m.State, *m.SubState)
}

func (m MachineState) SubStateString() string {
	if m.SubState == nil {
		return ""
	}
	switch m.State {
	case StateHold:
		switch *m.SubState {
		case 0:
			return "complete"
		case 1:
			return "in-progress"
		}
	case StateDoor:
		switch *m.SubState {
		case 0:
			return "closed"
		case 1:
			return "ajar"
		case 2:
			return "opened"
		case 3:
			return "resuming"
		}
	}
	return fmt.Sprintf("unknown (%d)", *m.SubState)
}

type BufferState struct {
	// Number of available blocks in the planner buffer
	AvailableBlocks int `json:"available_blocks"`
	// Number of available bytes in the serial RX buffer
	AvailableBytes int `json:"available_bytes"`
}

func NewBufferState(dataValues []string) (*BufferState, error) {
	if len(dataValues) != 2 {
		return nil, fmt.Errorf("buffer state field malformed: %#v", dataValues)
	}
	availableBlocks, err := strconv.Atoi(dataValues[0])
	if err != nil {
		return nil, fmt.Errorf("buffer state available blocks invalid: %#v", dataValues[0])
	}
	availableBytes, err := strconv.Atoi(dataValues[1])
	if err != nil {
		return nil, fmt.Errorf("buffer state available bytes invalid: %#v", dataValues[1])
	}
	return &BufferState{
		AvailableBlocks: availableBlocks,
		AvailableBytes:  availableBytes,
	}, nil
}

// Current feed rate and, for variable spindle builds, spindle speed.
type FeedSpindle struct {
	Feed  float64  `json:"feed"`
	Speed *float64 `json:"speed,omitempty"`
}

func NewFeedSpindle(dataValues []string) (*FeedSpindle, error) {
	if len(dataValues) < 1 || len(dataValues) > 2 {
		return nil, fmt.Errorf("feed spindle field malformed: %#v", dataValues)
	}
	feed, err := strconv.ParseFloat(dataValues[0], 64)
	if err != nil {
		return nil, fmt.Errorf("feed invalid: %#v", dataValues[0])
	}
	feedSpindle := &FeedSpindle{Feed: feed}
	if len(dataValues) == 2 {
		speed, err := strconv.ParseFloat(dataValues[1], 64)
		if err != nil {
			return nil, fmt.Errorf("spindle speed invalid: %#v", dataValues[1])
		}
		feedSpindle.Speed = &speed
	}
	return feedSpindle, nil
}

// StatusReportMessage is a <...> real-time status report. Fields that failed to parse are nil
// and their names are listed in Malformed.
type StatusReportMessage struct {
	Message              string
	MachineState         MachineState
	MachinePosition      *Coordinates
	WorkPosition         *Coordinates
	WorkCoordinateOffset *Coordinates
	BufferState          *BufferState
	FeedSpindle          *FeedSpindle
	// Every data field after the machine state, by name, as received.
	Fields    map[string]string
	Malformed []string
}

//gocyclo:ignore
func NewStatusReportMessage(message string) *StatusReportMessage {
	m := &StatusReportMessage{
		Message: message,
		Fields:  map[string]string{},
	}

	dataFields := strings.Split(message[1:len(message)-1], "|")

	var err error
	m.MachineState, err = NewMachineState(dataFields[0])
	if err != nil {
		m.Malformed = append(m.Malformed, "state")
	}

	for _, dataField := range dataFields[1:] {
		dataType, value, ok := strings.Cut(dataField, ":")
		if !ok {
			m.Malformed = append(m.Malformed, dataField)
			continue
		}
		m.Fields[dataType] = value
		dataValues := strings.Split(value, ",")

		switch dataType {
		case "MPos":
			m.MachinePosition, err = NewCoordinatesFromStrValues(dataValues)
		case "WPos":
			m.WorkPosition, err = NewCoordinatesFromStrValues(dataValues)
		case "WCO":
			m.WorkCoordinateOffset, err = NewCoordinatesFromStrValues(dataValues)
		case "Bf":
			m.BufferState, err = NewBufferState(dataValues)
		case "F", "FS":
			m.FeedSpindle, err = NewFeedSpindle(dataValues)
		default:
			err = nil
		}
		if err != nil {
			m.Malformed = append(m.Malformed, dataType)
		}
	}

	return m
}

func (m *StatusReportMessage) String() string {
	return m.Message
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// CoordinateParams
////////////////////////////////////////////////////////////////////////////////////////////////////

var coordinateSystems = []string{"G54", "G55", "G56", "G57", "G58", "G59"}

// CoordinateParamsMessage is one of the [G54:...] to [G59:...] lines of the $# report.
// Coordinates is nil when the values could not be parsed.
type CoordinateParamsMessage struct {
	Message     string
	System      string
	Coordinates *Coordinates
}

func NewCoordinateParamsMessage(message string) *CoordinateParamsMessage {
	content := strings.TrimSuffix(strings.TrimPrefix(message, "["), "]")
	system, value, _ := strings.Cut(content, ":")
	coordinates, err := NewCoordinatesFromCSV(value)
	if err != nil {
		coordinates = nil
	}
	return &CoordinateParamsMessage{
		Message:     message,
		System:      system,
		Coordinates: coordinates,
	}
}

func (m *CoordinateParamsMessage) String() string {
	return m.Message
}

func isCoordinateParams(message string) bool {
	for _, system := range coordinateSystems {
		if strings.HasPrefix(message, "["+system+":") {
			return true
		}
	}
	return false
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// Welcome
////////////////////////////////////////////////////////////////////////////////////////////////////

// WelcomeMessage is the banner Grbl prints after a reset, eg: "Grbl 1.1h ['$' for help]".
type WelcomeMessage struct {
	Message string
}

func (m *WelcomeMessage) String() string {
	return m.Message
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// Unrecognized
////////////////////////////////////////////////////////////////////////////////////////////////////

// UnrecognizedMessage is any frame not matching a known format ([MSG:...], [GC:...], $N=...).
type UnrecognizedMessage struct {
	Message string
}

func (m *UnrecognizedMessage) String() string {
	return m.Message
}

////////////////////////////////////////////////////////////////////////////////////////////////////
// New
////////////////////////////////////////////////////////////////////////////////////////////////////

// NewMessage classifies a single frame. It never fails: anything not recognized becomes an
// UnrecognizedMessage.
func NewMessage(frame string) Message {
	if strings.HasPrefix(frame, messageErrorPrefix) {
		return &ErrorMessage{Message: frame, Code: parseCode(frame)}
	}
	if strings.HasPrefix(frame, messageAlarmPrefix) {
		return &AlarmMessage{Message: frame, Code: parseCode(frame)}
	}
	if len(frame) >= 2 && strings.HasPrefix(frame, "<") && strings.HasSuffix(frame, ">") {
		return NewStatusReportMessage(frame)
	}
	if isCoordinateParams(frame) {
		return NewCoordinateParamsMessage(frame)
	}
	if frame == messageAck {
		return &AckMessage{}
	}
	if strings.HasPrefix(frame, messageWelcomePrefix) {
		return &WelcomeMessage{Message: frame}
	}
	return &UnrecognizedMessage{Message: frame}
}
