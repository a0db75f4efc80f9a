package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
)

// OpenPortFn opens the channel to Grbl.
type OpenPortFn func(context.Context, *serial.Mode) (serial.Port, error)

var DefaultBaudRate = 115200

// NewMode returns the 8N1 mode Grbl uses.
func NewMode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerial opens a local serial port.
func OpenSerial(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
	logger := log.MustLogger(ctx)
	logger.Info("Opening serial port", "port-name", portName, "baud-rate", mode.BaudRate)
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// SerialOpenPortFn returns an OpenPortFn for a local serial port.
func SerialOpenPortFn(portName string) OpenPortFn {
	return func(ctx context.Context, mode *serial.Mode) (serial.Port, error) {
		return OpenSerial(ctx, portName, mode)
	}
}

// TCPOpenPortFn returns an OpenPortFn for a serial port exposed over TCP. The mode is ignored, as
// it is set by the remote side.
func TCPOpenPortFn(address string, timeout time.Duration) OpenPortFn {
	return func(ctx context.Context, mode *serial.Mode) (serial.Port, error) {
		return DialTCP(ctx, address, timeout)
	}
}

// ListPorts lists local serial port names.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
