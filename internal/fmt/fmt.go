package fmt

import (
	"fmt"
	"strings"

	"github.com/fornellas/grblbridge/grbl"
)

// SprintFloat formats value with at most decimal places, without trailing zeros.
func SprintFloat(value float64, decimal uint) string {
	var floatStr string
	if decimal > 0 {
		floatFormat := fmt.Sprintf("%%.%df", decimal)
		floatStr = fmt.Sprintf(floatFormat, value)
		floatStr = strings.TrimRight(strings.TrimRight(floatStr, "0"), ".")
	} else {
		floatStr = fmt.Sprintf("%.0f", value)
	}
	if floatStr == "-0" {
		return "0"
	}
	return floatStr
}

// SprintCoordinates formats each axis padded to width, or a placeholder for unknown coordinates.
func SprintCoordinates(coordinates *grbl.Coordinates, width int) string {
	axes := []grbl.Axis{grbl.AxisX, grbl.AxisY, grbl.AxisZ}
	values := make([]string, len(axes))
	for i, axis := range axes {
		value := "?"
		if coordinates != nil {
			value = fmt.Sprintf("%.3f", *coordinates.GetAxis(axis))
		}
		values[i] = fmt.Sprintf("%s:%*s", axis, width, value)
	}
	return strings.Join(values, " ")
}
