package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// OutputValue is a flag holding a file path, or "-" / empty for stdout.
type OutputValue struct {
	path string
}

func NewOutputValue() *OutputValue {
	return &OutputValue{}
}

func (o *OutputValue) stdout() bool {
	return o.path == "" || o.path == "-"
}

func (o *OutputValue) String() string {
	if o.stdout() {
		return "(STDOUT)"
	}
	return o.path
}

func (o *OutputValue) Set(value string) error {
	o.path = value
	return nil
}

func (o *OutputValue) Reset() {
	o.path = ""
}

func (o *OutputValue) Type() string {
	return "[path]"
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// WriterCloser opens the output. Closing stdout is a no-op.
func (o *OutputValue) WriterCloser(stdout io.Writer) (io.WriteCloser, error) {
	if o.stdout() {
		return nopWriteCloser{Writer: stdout}, nil
	}
	return os.OpenFile(o.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(0644))
}

var outputValue = NewOutputValue()

func AddOutputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().VarP(outputValue, "output", "o", "Path to write to, default is stdout")
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		outputValue.Reset()
	})
}
