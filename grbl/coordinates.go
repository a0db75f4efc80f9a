package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinates holds X, Y and Z axis values. Controllers configured with more axes report extra
// values, which are ignored.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewCoordinatesFromStrValues creates Coordinates from string values for X, Y and Z; any values
// after the third are ignored.
func NewCoordinatesFromStrValues(dataValues []string) (*Coordinates, error) {
	if len(dataValues) < 3 || len(dataValues) > 6 {
		return nil, fmt.Errorf("coordinates malformed: %#v", dataValues)
	}

	coordinates := &Coordinates{}
	for i, value := range []*float64{&coordinates.X, &coordinates.Y, &coordinates.Z} {
		var err error
		*value, err = strconv.ParseFloat(strings.TrimSpace(dataValues[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinates %c invalid: %#v", "XYZ"[i], dataValues[i])
		}
	}
	return coordinates, nil
}

// NewCoordinatesFromCSV creates Coordinates from a CSV string: X,Y,Z[,...].
func NewCoordinatesFromCSV(s string) (*Coordinates, error) {
	return NewCoordinatesFromStrValues(strings.Split(s, ","))
}

// Sub returns c - o.
func (c Coordinates) Sub(o Coordinates) Coordinates {
	return Coordinates{X: c.X - o.X, Y: c.Y - o.Y, Z: c.Z - o.Z}
}

// Add returns c + o.
func (c Coordinates) Add(o Coordinates) Coordinates {
	return Coordinates{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// GetAxis returns a pointer to the value of the given axis, or nil for an unknown axis.
func (c *Coordinates) GetAxis(axis Axis) *float64 {
	switch axis {
	case AxisX:
		return &c.X
	case AxisY:
		return &c.Y
	case AxisZ:
		return &c.Z
	}
	return nil
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f", c.X, c.Y, c.Z)
}

type Axis string

var AxisX Axis = "X"
var AxisY Axis = "Y"
var AxisZ Axis = "Z"

// NewAxis parses an axis letter, case insensitive.
func NewAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(s)) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	}
	return "", fmt.Errorf("unknown axis: %#v", s)
}
