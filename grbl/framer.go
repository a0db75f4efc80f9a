package grbl

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxFramerBufferSize is the largest unterminated remainder a Framer keeps between calls to Feed.
const MaxFramerBufferSize = 4096

var ErrFramerOverflow = errors.New("framer buffer overflow")

// Framer accumulates raw bytes received from Grbl and extracts complete frames from it: newline
// terminated lines and bracketed <...> status reports, which Grbl may emit without a trailing
// newline in between other output.
type Framer struct {
	buf []byte
}

func NewFramer() *Framer {
	return &Framer{}
}

func (f *Framer) nextLine() (string, bool) {
	i := bytes.IndexByte(f.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimSpace(f.buf[:i]))
	f.buf = f.buf[i+1:]
	return line, true
}

func (f *Framer) nextStatusReport() (string, bool) {
	start := bytes.IndexByte(f.buf, '<')
	if start < 0 {
		return "", false
	}
	end := bytes.IndexByte(f.buf[start:], '>')
	if end < 0 {
		return "", false
	}
	end += start + 1
	frame := string(f.buf[start:end])
	f.buf = append(f.buf[:start:start], f.buf[end:]...)
	return frame, true
}

// Feed appends data to the internal buffer and returns every complete frame found, in stream
// order for lines, followed by any complete status report left in the unterminated remainder.
// Partial input is kept for the next call. If the remainder grows beyond MaxFramerBufferSize it
// is discarded and ErrFramerOverflow is returned along with the frames extracted so far.
func (f *Framer) Feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	frames := []string{}
	for {
		line, ok := f.nextLine()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		frames = append(frames, line)
	}

	for {
		frame, ok := f.nextStatusReport()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}

	if len(f.buf) > MaxFramerBufferSize {
		n := len(f.buf)
		f.buf = nil
		return frames, fmt.Errorf("%w: discarded %d bytes", ErrFramerOverflow, n)
	}

	// Drop the consumed prefix so the backing array does not grow forever.
	if len(f.buf) == 0 {
		f.buf = nil
	} else if cap(f.buf) > 2*MaxFramerBufferSize {
		f.buf = append([]byte(nil), f.buf...)
	}

	return frames, nil
}

// Buffered returns the number of unterminated bytes kept for the next call to Feed.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial input.
func (f *Framer) Reset() {
	f.buf = nil
}
