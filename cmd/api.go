package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/grblbridge/api"
)

var apiListenAddress string
var defaultAPIListenAddress = "127.0.0.1:8080"

var ApiCmd = &cobra.Command{
	Use:   "api",
	Short: "Open Grbl connection and serve an HTTP API for it.",
	Long:  "Serves machine state as JSON, Server-Sent Events and over a WebSocket, and accepts commands, real-time commands and jogging. There's NO security implemented, this can only be used in secure networks at your own risk.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
			"listen-address", apiListenAddress,
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

		logger.Info("Listening")
		listener, err := net.Listen("tcp", apiListenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen: %s: %w", apiListenAddress, err)
		}

		options := api.DefaultOptions
		options.Gesture = gestureOptions
		server := api.NewServer(ctx, conn.Bridge(), options)

		return runUntilDisconnected(ctx, conn, func(ctx context.Context) error {
			return server.Run(ctx, listener)
		})
	}),
}

func init() {
	AddBridgeFlags(ApiCmd)
	ApiCmd.Flags().StringVar(&apiListenAddress, "listen-address", defaultAPIListenAddress, "TCP address to listen on (host:port)")

	RootCmd.AddCommand(ApiCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		apiListenAddress = defaultAPIListenAddress
	})
}
