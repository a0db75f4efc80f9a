package main

import (
	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	tuiMod "github.com/fornellas/grblbridge/tui"
)

var ControlCmd = &cobra.Command{
	Use:   "control",
	Short: "Open Grbl connection and provide a terminal control interface.",
	Long:  "Shows machine state, position, alarms and errors, and allows jogging with the keyboard and sending commands. Other senders may share the same Grbl connection.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, _ := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
		)
		cmd.SetContext(ctx)

		conn, err := NewConn()
		if err != nil {
			return err
		}

		tui := tuiMod.NewTui(conn, &tuiMod.TuiOptions{
			AppLogger: logDebugFileLogger,
			Gesture:   gestureOptions,
		})

		return tui.Run(ctx)
	}),
}

func init() {
	AddBridgeFlags(ControlCmd)

	RootCmd.AddCommand(ControlCmd)
}
