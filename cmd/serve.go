package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/grblbridge/transport"
)

var listenAddress string
var defaultListenAddress = "127.0.0.1:9999"

// pipe copies between conn and port until either side fails, then closes both.
func pipe(ctx context.Context, conn net.Conn, port io.ReadWriteCloser) error {
	logger := log.MustLogger(ctx)

	errCh := make(chan error, 2)

	logger.Info("Copying I/O")
	go func() {
		_, err := io.Copy(conn, port)
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(port, conn)
		errCh <- err
	}()

	var err error
	pending := 2
	select {
	case err = <-errCh:
		pending--
	case <-ctx.Done():
	}
	logger.Info("Closing connection")
	err = errors.Join(err, conn.Close())
	logger.Info("Closing port")
	err = errors.Join(err, port.Close())
	logger.Info("Waiting for copy routines to return")
	for ; pending > 0; pending-- {
		copyErr := <-errCh
		if ctx.Err() == nil {
			err = errors.Join(err, copyErr)
		}
	}

	return err
}

func handleServeConnection(ctx context.Context, conn net.Conn, openPortFn transport.OpenPortFn) error {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return errors.Join(fmt.Errorf("failed to set TCP no delay: %w", err), conn.Close())
		}
	}

	port, err := openPortFn(ctx, transport.NewMode(baudRate))
	if err != nil {
		return errors.Join(err, conn.Close())
	}

	return pipe(ctx, conn, port)
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a TCP server connected to a serial port.",
	Long:  "Opens serial port and a TCP server, and pipes communication between both, one connection at a time. Other commands can connect to it with --address. There's NO security implemented, this can only be used in secure networks at your own risk.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"listen-address", listenAddress,
		)
		cmd.SetContext(ctx)

		logger.Info("Listening")
		listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", listenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen: %s: %w", listenAddress, err)
		}
		go func() {
			<-ctx.Done()
			listener.Close()
		}()

		openPortFn := transport.SerialOpenPortFn(portName)
		for {
			logger.Info("Accepting connection")
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Failed to accept connection", "error", err)
				continue
			}
			connCtx, connLogger := log.MustWithGroupAttrs(
				ctx,
				"Connection",
				"LocalAddr", conn.LocalAddr(),
				"RemoteAddr", conn.RemoteAddr(),
			)
			connLogger.Info("Accepted")

			if err := handleServeConnection(connCtx, conn, openPortFn); err != nil {
				connLogger.Error("Failed to handle connection", "error", err)
			}
		}
	}),
}

func init() {
	ServeCmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open")
	if err := ServeCmd.MarkPersistentFlagRequired("port-name"); err != nil {
		panic(err)
	}
	ServeCmd.PersistentFlags().IntVar(&baudRate, "baud-rate", defaultBaudRate, "Serial port baud rate")
	ServeCmd.PersistentFlags().StringVar(&listenAddress, "listen-address", defaultListenAddress, "TCP address to listen on (host:port)")

	RootCmd.AddCommand(ServeCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		listenAddress = defaultListenAddress
	})
}
