package bridge

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/fornellas/grblbridge/grbl"
	iFmt "github.com/fornellas/grblbridge/internal/fmt"
)

// StatusRequestCommand is sent as a line: Grbl picks the real-time ? out of it and answers with a
// status report, then answers the empty line with ok, which lets it be correlated.
var StatusRequestCommand = "?"

var UnlockCommand = "$X"
var HomeCommand = "$H"

// normalizeCommand removes comments and spaces, and upper cases.
func normalizeCommand(command string) string {
	var sb strings.Builder
	inComment := false
	for _, r := range command {
		switch {
		case inComment:
			if r == ')' {
				inComment = false
			}
		case r == '(':
			inComment = true
		case r == ';':
			return strings.ToUpper(sb.String())
		case r == ' ' || r == '\t' || r == '\r':
		default:
			sb.WriteRune(r)
		}
	}
	return strings.ToUpper(sb.String())
}

func isStatusRequestCommand(command string) bool {
	return command == StatusRequestCommand
}

func IsJogCommand(command string) bool {
	return strings.HasPrefix(normalizeCommand(command), "$J=")
}

func IsHomeCommand(command string) bool {
	return strings.HasPrefix(normalizeCommand(command), HomeCommand)
}

// gWords returns the values of all G words in a normalized block.
func gWords(block string) []float64 {
	values := []float64{}
	for i := 0; i < len(block); i++ {
		if block[i] != 'G' {
			continue
		}
		j := i + 1
		for j < len(block) && (block[j] == '.' || (block[j] >= '0' && block[j] <= '9')) {
			j++
		}
		if value, err := strconv.ParseFloat(block[i+1:j], 64); err == nil {
			values = append(values, value)
		}
		i = j - 1
	}
	return values
}

// IsMotionCommand tells whether sending the command is likely to move the machine.
func IsMotionCommand(command string) bool {
	block := normalizeCommand(command)
	if strings.HasPrefix(block, "$J=") || strings.HasPrefix(block, HomeCommand) {
		return true
	}
	if strings.HasPrefix(block, "$") {
		return false
	}
	for _, value := range gWords(block) {
		switch {
		case value == 0, value == 1, value == 2, value == 3, value == 28, value == 30:
			return true
		case value >= 38 && value < 39:
			return true
		}
	}
	// Axis words move in the modal motion mode, unless a G word uses them as parameters.
	if !hasAxisWords(block) {
		return false
	}
	for _, value := range gWords(block) {
		if slices.Contains(axisParameterGWords, value) {
			return false
		}
	}
	return true
}

// G words taking axis words as parameters rather than as a target.
var axisParameterGWords = []float64{10, 28.1, 30.1, 43.1, 92}

func hasAxisWords(block string) bool {
	for i := 0; i < len(block)-1; i++ {
		switch block[i] {
		case 'X', 'Y', 'Z':
			next := block[i+1]
			if next == '-' || next == '+' || next == '.' || (next >= '0' && next <= '9') {
				return true
			}
		}
	}
	return false
}

// JogCommand returns an incremental, metric, jog command.
func JogCommand(axis grbl.Axis, distance, feedRate float64) (string, error) {
	if axis != grbl.AxisX && axis != grbl.AxisY && axis != grbl.AxisZ {
		return "", fmt.Errorf("invalid axis: %#v", axis)
	}
	if distance == 0 {
		return "", fmt.Errorf("jog distance must not be zero")
	}
	if feedRate <= 0 {
		return "", fmt.Errorf("jog feed rate must be positive: %v", feedRate)
	}
	return fmt.Sprintf(
		"$J=G91G21%s%sF%s",
		axis, iFmt.SprintFloat(distance, 3), iFmt.SprintFloat(feedRate, 3),
	), nil
}

func validateCommand(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("command must be single line string: %#v", command)
	}
	return nil
}
