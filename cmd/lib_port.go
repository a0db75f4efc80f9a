package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fornellas/grblbridge/transport"
)

var portName string
var defaultPortName = ""

var address string
var defaultAddress = ""

var baudRate int
var defaultBaudRate = transport.DefaultBaudRate

var dialTimeout time.Duration
var defaultDialTimeout = 5 * time.Second

func AddPortFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open")
	cmd.PersistentFlags().StringVarP(&address, "address", "a", defaultAddress, "TCP address to connect to, as exposed by the serve command")
	cmd.PersistentFlags().IntVar(&baudRate, "baud-rate", defaultBaudRate, "Serial port baud rate")
	cmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", defaultDialTimeout, "Timeout to connect to --address")
}

func GetOpenPortFn() (transport.OpenPortFn, error) {
	if portName != "" && address != "" {
		return nil, fmt.Errorf("flags --port-name and --address can't be set simultaneously")
	}

	if portName != "" {
		return transport.SerialOpenPortFn(portName), nil
	}

	if address != "" {
		return transport.TCPOpenPortFn(address, dialTimeout), nil
	}

	ports, err := transport.ListPorts()
	if err == nil && len(ports) > 0 {
		return nil, fmt.Errorf("either --port-name or --address must be set; available serial ports: %v", ports)
	}
	return nil, fmt.Errorf("either --port-name or --address must be set")
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		portName = defaultPortName
		address = defaultAddress
		baudRate = defaultBaudRate
		dialTimeout = defaultDialTimeout
	})
}
