package main

import (
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

// Exit terminates the program. Tests may replace exitFunc.
func Exit(code int) {
	exitFunc(code)
}

// GetRunFn adapts a function returning an error to cobra's Run, logging the error and exiting
// with a non zero code.
func GetRunFn(runFn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := runFn(cmd, args); err != nil {
			logger := log.MustLogger(cmd.Context())
			logger.Error("Failed", "err", err)
			Exit(1)
		}
	}
}
