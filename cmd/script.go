package main

import (
	"context"
	"errors"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	scriptMod "github.com/fornellas/grblbridge/script"
)

var ScriptCmd = &cobra.Command{
	Use:   "script path",
	Short: "Execute a Go script driving Grbl.",
	Long: `Scripts are interpreted Go programs which can import the standard library and the "cnc" package:

  cnc.Send(command string) error       send a command and wait for its response
  cnc.State() string                   machine state from the last status report
  cnc.Position() (cnc.Coordinates, error)
  cnc.WorkPosition() (cnc.Coordinates, error)
  cnc.Home() error                     run the homing cycle
  cnc.Unlock() error                   clear an alarm lock
  cnc.WaitIdle() error                 wait for motion to complete
  cnc.Sleep(d time.Duration) error`,
	Args: cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

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

		if err := conn.Connect(ctx); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, conn.Disconnect(ctx)) }()

		script := scriptMod.NewScript(conn.Bridge(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		return runUntilDisconnected(ctx, conn, func(ctx context.Context) error {
			return script.Run(ctx, path)
		})
	}),
}

func init() {
	AddBridgeFlags(ScriptCmd)

	RootCmd.AddCommand(ScriptCmd)
}
