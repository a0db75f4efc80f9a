package grbl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	for _, tc := range []struct {
		kind CodeKind
		max  int
	}{
		{CodeKindError, 38},
		{CodeKindAlarm, 10},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			for code := 1; code <= tc.max; code++ {
				description, remedy := Translate(tc.kind, code)
				require.NotEqual(t, UnknownCodeDescription(tc.kind, code), description, "code %d", code)
				require.NotEmpty(t, description, "code %d", code)
				require.NotEmpty(t, remedy, "code %d", code)
			}
			for _, code := range []int{-1, 0, tc.max + 1, 255} {
				t.Run(fmt.Sprintf("%d", code), func(t *testing.T) {
					description, remedy := Translate(tc.kind, code)
					require.Equal(t, UnknownCodeDescription(tc.kind, code), description)
					require.Equal(t, UnknownCodeRemedy, remedy)
				})
			}
		})
	}
}
