package fmt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/grblbridge/grbl"
)

func TestSprintFloat(t *testing.T) {
	for _, tc := range []struct {
		value    float64
		decimal  uint
		expected string
	}{
		{1000, 3, "1000"},
		{-0.1, 3, "-0.1"},
		{250.5, 3, "250.5"},
		{1.23456, 3, "1.235"},
		{-0.0001, 3, "0"},
		{2.4, 0, "2"},
	} {
		require.Equal(t, tc.expected, SprintFloat(tc.value, tc.decimal), tc)
	}
}

func TestSprintCoordinates(t *testing.T) {
	require.Equal(t, "X:  1.000 Y: -2.500 Z:  0.000", SprintCoordinates(&grbl.Coordinates{X: 1, Y: -2.5}, 7))
	require.Equal(t, "X: ? Y: ? Z: ?", SprintCoordinates(nil, 2))
}
