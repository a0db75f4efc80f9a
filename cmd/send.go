package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

var sendFile string
var defaultSendFile = ""

func readCommands(r io.Reader) ([]string, error) {
	var commands []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}
		commands = append(commands, command)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}
	return commands, nil
}

func getSendCommands(cmd *cobra.Command, args []string) (commands []string, err error) {
	if len(args) > 0 {
		if sendFile != "" {
			return nil, fmt.Errorf("commands can't be given both as arguments and with --file")
		}
		return args, nil
	}
	if sendFile == "" {
		return readCommands(cmd.InOrStdin())
	}
	f, err := os.Open(sendFile)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return readCommands(f)
}

var SendCmd = &cobra.Command{
	Use:   "send [command...]",
	Short: "Send commands to Grbl, one at a time, waiting for each response.",
	Long:  "Commands are given as arguments, or one per line from --file or stdin. Stops at the first error.",
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
		)
		cmd.SetContext(ctx)

		commands, err := getSendCommands(cmd, args)
		if err != nil {
			return err
		}

		conn, err := NewConn()
		if err != nil {
			return err
		}

		if err := conn.Connect(ctx); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, conn.Disconnect(ctx)) }()

		b := conn.Bridge()
		for i, command := range commands {
			logger.Info("Sending", "n", i+1, "of", len(commands), "command", command)
			if err := b.SendWait(ctx, command); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	AddBridgeFlags(SendCmd)
	SendCmd.Flags().StringVarP(&sendFile, "file", "f", defaultSendFile, "Read commands from this file")

	RootCmd.AddCommand(SendCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		sendFile = defaultSendFile
	})
}
