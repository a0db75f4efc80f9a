package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/grblbridge/bridge"
)

var statusTimeout time.Duration
var defaultStatusTimeout = 5 * time.Second

// waitStatusReport waits for the next status report from eventCh.
func waitStatusReport(ctx context.Context, eventCh <-chan bridge.Event) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for status report: %w", ctx.Err())
		case event, ok := <-eventCh:
			if !ok || event.Kind == bridge.EventKindDisconnected {
				return bridge.ErrDisconnected
			}
			if event.Kind == bridge.EventKindFrameReceived && strings.HasPrefix(event.Text, "<") {
				return nil
			}
		}
	}
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Output Grbl state as JSON.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, _ := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
			"output", outputValue.String(),
		)
		cmd.SetContext(ctx)

		conn, err := NewConn()
		if err != nil {
			return err
		}
		b := conn.Bridge()

		eventCh := b.Events.Subscribe("Status", 64)
		defer b.Events.Unsubscribe("Status")

		if err := conn.Connect(ctx); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, conn.Disconnect(ctx)) }()

		waitCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()
		if err := waitStatusReport(waitCtx, eventCh); err != nil {
			return err
		}

		w, err := outputValue.WriterCloser(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, w.Close()) }()

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(b.CurrentState())
	}),
}

func init() {
	AddBridgeFlags(StatusCmd)
	AddOutputFlags(StatusCmd)
	StatusCmd.Flags().DurationVar(&statusTimeout, "timeout", defaultStatusTimeout, "How long to wait for a status report")

	RootCmd.AddCommand(StatusCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		statusTimeout = defaultStatusTimeout
	})
}
