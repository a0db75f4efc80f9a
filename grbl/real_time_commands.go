package grbl

import (
	"errors"
	"fmt"
)

var ErrNotRealTimeCommand = errors.New("not a real time command")

// RealTimeCommand is a single control byte which Grbl acts on immediately, outside of the line
// buffered command channel. It gets no ok / error:N response.
type RealTimeCommand byte

var (
	RealTimeCommandSoftReset         RealTimeCommand = 0x18
	RealTimeCommandStatusReportQuery RealTimeCommand = '?'
	RealTimeCommandCycleStartResume  RealTimeCommand = '~'
	// Feed Hold. Used as the emergency stop.
	RealTimeCommandFeedHold   RealTimeCommand = '!'
	RealTimeCommandSafetyDoor RealTimeCommand = 0x84
	RealTimeCommandJogCancel  RealTimeCommand = 0x85
)

type realTimeCommandInfo struct {
	description string
	name        string
}

var realTimeCommandInfoMap = map[RealTimeCommand]realTimeCommandInfo{
	RealTimeCommandSoftReset:         {"Soft-Reset", "reset"},
	RealTimeCommandStatusReportQuery: {"Status Report Query", "status"},
	RealTimeCommandCycleStartResume:  {"Cycle Start / Resume", "resume"},
	RealTimeCommandFeedHold:          {"Feed Hold", "estop"},
	RealTimeCommandSafetyDoor:        {"Safety Door", "safety-door"},
	RealTimeCommandJogCancel:         {"Jog Cancel", "jog-cancel"},
}

func NewRealTimeCommand(b byte) (RealTimeCommand, error) {
	rtc := RealTimeCommand(b)
	if _, ok := realTimeCommandInfoMap[rtc]; ok {
		return rtc, nil
	}
	return 0, ErrNotRealTimeCommand
}

// NewRealTimeCommandFromName parses short names such as "estop" or "jog-cancel".
func NewRealTimeCommandFromName(name string) (RealTimeCommand, error) {
	for rtc, info := range realTimeCommandInfoMap {
		if info.name == name {
			return rtc, nil
		}
	}
	return 0, fmt.Errorf("%w: %#v", ErrNotRealTimeCommand, name)
}

// Name returns the short name of the command, or an empty string for unknown bytes.
func (c RealTimeCommand) Name() string {
	return realTimeCommandInfoMap[c].name
}

func (c RealTimeCommand) String() string {
	if info, ok := realTimeCommandInfoMap[c]; ok {
		return info.description
	}
	return fmt.Sprintf("Unknown (%#v)", byte(c))
}
