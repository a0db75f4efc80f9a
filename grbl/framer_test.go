package grbl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func feedAll(t require.TestingT, f *Framer, chunks ...string) []string {
	frames := []string{}
	for _, chunk := range chunks {
		newFrames, err := f.Feed([]byte(chunk))
		require.NoError(t, err)
		frames = append(frames, newFrames...)
	}
	return frames
}

func TestFramerFeed(t *testing.T) {
	for _, tc := range []struct {
		name     string
		chunks   []string
		frames   []string
		buffered int
	}{
		{
			name:   "lines",
			chunks: []string{"ok\nerror:9\n"},
			frames: []string{"ok", "error:9"},
		},
		{
			name:   "crlf and blank lines",
			chunks: []string{"ok\r\n\r\n  \nGrbl 1.1h ['$' for help]\r\n"},
			frames: []string{"ok", "Grbl 1.1h ['$' for help]"},
		},
		{
			name:     "partial line kept",
			chunks:   []string{"o"},
			frames:   []string{},
			buffered: 1,
		},
		{
			name:   "partial line completed",
			chunks: []string{"o", "k", "\n"},
			frames: []string{"ok"},
		},
		{
			name:   "status report without newline",
			chunks: []string{"ok\n<Idle|MPos:0.000,0.000,0.000>"},
			frames: []string{"ok", "<Idle|MPos:0.000,0.000,0.000>"},
		},
		{
			name:   "several status reports without newline",
			chunks: []string{"<Idle|MPos:1,2,3><Run|MPos:4,5,6>"},
			frames: []string{"<Idle|MPos:1,2,3>", "<Run|MPos:4,5,6>"},
		},
		{
			name:     "status report inside unterminated text",
			chunks:   []string{"[MSG:<Jog|MPos:1,2,3>"},
			frames:   []string{"<Jog|MPos:1,2,3>"},
			buffered: len("[MSG:"),
		},
		{
			name:     "unterminated status report",
			chunks:   []string{"<Idle|MPos:1,"},
			frames:   []string{},
			buffered: len("<Idle|MPos:1,"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFramer()
			require.Equal(t, tc.frames, feedAll(t, f, tc.chunks...))
			require.Equal(t, tc.buffered, f.Buffered())
		})
	}
}

func TestFramerFeedByteByByte(t *testing.T) {
	input := "<Idle|MPos:0.0,0.0,0.0>\nok\n"
	f := NewFramer()
	chunks := []string{}
	for i := range len(input) {
		chunks = append(chunks, input[i:i+1])
	}
	require.Equal(t, []string{"<Idle|MPos:0.0,0.0,0.0>", "ok"}, feedAll(t, f, chunks...))
	require.Zero(t, f.Buffered())
}

func TestFramerOverflow(t *testing.T) {
	f := NewFramer()
	frames, err := f.Feed([]byte("ok\n" + strings.Repeat("x", MaxFramerBufferSize+1)))
	require.ErrorIs(t, err, ErrFramerOverflow)
	require.Equal(t, []string{"ok"}, frames)
	require.Zero(t, f.Buffered())

	frames, err = f.Feed([]byte("ok\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, frames)
}

func TestFramerReset(t *testing.T) {
	f := NewFramer()
	require.Empty(t, feedAll(t, f, "erro"))
	f.Reset()
	require.Equal(t, []string{"ok"}, feedAll(t, f, "ok\n"))
}

func genFrame(t *rapid.T, label string) string {
	if rapid.Bool().Draw(t, label+"IsStatus") {
		return "<" + rapid.StringMatching(`(Idle|Run|Jog|Hold:[01])\|MPos:[0-9]{1,3}\.[0-9]{3},[0-9]{1,3}\.[0-9]{3},[0-9]{1,3}\.[0-9]{3}`).Draw(t, label) + ">"
	}
	return rapid.StringMatching(`[a-zA-Z0-9:|.,$=\[\]]{1,24}`).Draw(t, label)
}

func TestFramerChunkingIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frameCount := rapid.IntRange(0, 20).Draw(t, "frameCount")
		expected := []string{}
		var sb strings.Builder
		for range frameCount {
			frame := genFrame(t, "frame")
			expected = append(expected, frame)
			sb.WriteString(frame)
			if rapid.Bool().Draw(t, "crlf") {
				sb.WriteString("\r")
			}
			sb.WriteString("\n")
		}
		input := sb.String()

		whole, err := NewFramer().Feed([]byte(input))
		require.NoError(t, err)
		require.Equal(t, expected, whole)

		f := NewFramer()
		chunked := []string{}
		for pos := 0; pos < len(input); {
			n := min(rapid.IntRange(1, 16).Draw(t, "chunkSize"), len(input)-pos)
			frames, err := f.Feed([]byte(input[pos : pos+n]))
			require.NoError(t, err)
			chunked = append(chunked, frames...)
			pos += n
		}
		require.Equal(t, whole, chunked)
		require.Zero(t, f.Buffered())
	})
}
