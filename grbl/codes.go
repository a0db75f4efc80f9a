package grbl

import "fmt"

type CodeKind int

const (
	CodeKindError CodeKind = iota
	CodeKindAlarm
)

func (k CodeKind) String() string {
	switch k {
	case CodeKindError:
		return "error"
	case CodeKindAlarm:
		return "alarm"
	}
	return fmt.Sprintf("unknown (%d)", int(k))
}

type codeText struct {
	description string
	remedy      string
}

var errorCodes = map[int]codeText{
	1:  {"G-code words consist of a letter and a value. Letter was not found", "Check the command for a missing or misplaced letter."},
	2:  {"Numeric value format is not valid or missing an expected value", "Check the numbers in the command."},
	3:  {"Grbl '$' system command was not recognized or supported", "Send $ for the list of supported system commands."},
	4:  {"Negative value received for an expected positive value", "Use a positive value."},
	5:  {"Homing cycle is not enabled via settings", "Enable homing with $22=1."},
	6:  {"Minimum step pulse time must be greater than 3usec", "Increase $0."},
	7:  {"EEPROM read failed. Reset and restored to default values", "Review and restore all $ settings."},
	8:  {"Grbl '$' command cannot be used unless Grbl is IDLE. Ensures smooth operation during a job", "Wait for the machine to be Idle."},
	9:  {"G-code locked out during alarm or jog state", "Unlock with $X or home with $H."},
	10: {"Soft limits cannot be enabled without homing also enabled", "Enable homing with $22=1 first."},
	11: {"Max characters per line exceeded. Line was not processed and executed", "Split the line or remove spaces and comments."},
	12: {"Grbl '$' setting value exceeds the maximum step rate supported", "Lower the max rate or steps/mm setting."},
	13: {"Safety door detected as opened and door state initiated", "Close the safety door and resume."},
	14: {"Build info or startup line exceeded EEPROM line length limit", "Shorten the line."},
	15: {"Jog target exceeds machine travel. Command ignored", "Jog a shorter distance or check soft limits."},
	16: {"Jog command with no '=' or contains prohibited g-code", "Use the $J=<block> format with allowed words only."},
	17: {"Laser mode requires PWM output", "Disable laser mode with $32=0."},
	18: {"Reset asserted", "Release the reset input."},
	19: {"Non positive value", "Use a value greater than zero."},
	20: {"Unsupported or invalid g-code command found in block", "Remove the unsupported command."},
	21: {"More than one g-code command from same modal group found in block", "Split the block."},
	22: {"Feed rate has not yet been set or is undefined", "Add an F word."},
	23: {"G-code command in block requires an integer value", "Use an integer value."},
	24: {"Two G-code commands that both require the use of the XYZ axis words were detected in the block", "Split the block."},
	25: {"A G-code word was repeated in the block", "Remove the repeated word."},
	26: {"A G-code command implicitly or explicitly requires XYZ axis words in the block, but none were detected", "Add axis words."},
	27: {"N line number value is not within the valid range of 1 - 9,999,999", "Fix the line number."},
	28: {"A G-code command was sent, but is missing some required P or L value words in the line", "Add the P or L word."},
	29: {"Grbl supports six work coordinate systems G54-G59. G59.1, G59.2, and G59.3 are not supported", "Use G54 to G59."},
	30: {"The G53 G-code command requires either a G0 seek or G1 feed motion mode to be active. A different motion was active", "Add G0 or G1 to the block."},
	31: {"There are unused axis words in the block and G80 motion mode cancel is active", "Remove the axis words."},
	32: {"A G2 or G3 arc was commanded but there are no XYZ axis words in the selected plane to trace the arc", "Add axis words in the selected plane."},
	33: {"The motion command has an invalid target. G2, G3, and G38.2 generates this error, if the arc is impossible to generate or if the probe target is the current position", "Fix the motion target."},
	34: {"A G2 or G3 arc, traced with the radius definition, had a mathematical error when computing the arc geometry", "Break the arc into semi-circles or quadrants, or use the offset definition."},
	35: {"A G2 or G3 arc, traced with the offset definition, is missing the IJK offset word in the selected plane to trace the arc", "Add the IJK offset words."},
	36: {"There are unused, leftover G-code words that aren't used by any command in the block", "Remove the unused words."},
	37: {"The G43.1 dynamic tool length offset command cannot apply an offset to an axis other than its configured axis", "Apply the offset to the Z axis."},
	38: {"Tool number greater than max supported value", "Use a lower tool number."},
}

var alarmCodes = map[int]codeText{
	1:  {"Hard limit triggered. Machine position is likely lost due to sudden and immediate halt", "Re-homing is highly recommended."},
	2:  {"G-code motion target exceeds machine travel. Machine position safely retained", "Alarm may be unlocked with $X."},
	3:  {"Reset while in motion. Grbl cannot guarantee position. Lost steps are likely", "Re-homing is highly recommended."},
	4:  {"Probe fail. The probe is not in the expected initial state before starting probe cycle", "Check the probe wiring and that it is not already triggered."},
	5:  {"Probe fail. Probe did not contact the workpiece within the programmed travel", "Move closer to the workpiece or increase the probe travel."},
	6:  {"Homing fail. Reset during active homing cycle", "Home again with $H."},
	7:  {"Homing fail. Safety door was opened during active homing cycle", "Close the door and home again with $H."},
	8:  {"Homing fail. Cycle failed to clear limit switch when pulling off", "Try increasing pull-off setting or check wiring."},
	9:  {"Homing fail. Could not find limit switch within search distance", "Check limit switch wiring and max travel settings."},
	10: {"Homing fail. On dual axis machines, could not find the second limit switch for self-squaring", "Check the second limit switch wiring."},
}

// UnknownCodeRemedy is the remedy returned for codes without a known description.
var UnknownCodeRemedy = "Check the controller documentation."

// Translate returns a human readable description and remedy for the given error or alarm code.
// Unknown codes get a generic description.
func Translate(kind CodeKind, code int) (description, remedy string) {
	var codes map[int]codeText
	switch kind {
	case CodeKindError:
		codes = errorCodes
	case CodeKindAlarm:
		codes = alarmCodes
	}
	if text, ok := codes[code]; ok {
		return text.description, text.remedy
	}
	return UnknownCodeDescription(kind, code), UnknownCodeRemedy
}

// UnknownCodeDescription is the generic description for codes without a translation.
func UnknownCodeDescription(kind CodeKind, code int) string {
	return fmt.Sprintf("unknown %s code (%d)", kind, code)
}
