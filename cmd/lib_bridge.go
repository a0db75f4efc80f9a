package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/gesture"
)

var bridgeOptions bridge.Options
var unlockOnConnect bool
var defaultUnlockOnConnect = false

var gestureOptions gesture.Options

func AddBridgeFlags(cmd *cobra.Command) {
	AddPortFlags(cmd)

	flags := cmd.PersistentFlags()
	flags.DurationVar(
		&bridgeOptions.Poller.MinInterval, "status-min-interval", bridge.DefaultOptions.Poller.MinInterval,
		"Minimum time between two status requests",
	)
	flags.DurationVar(
		&bridgeOptions.Poller.ActivityWindow, "activity-window", bridge.DefaultOptions.Poller.ActivityWindow,
		"Keep polling status for this long after activity by other senders",
	)
	flags.DurationVar(
		&bridgeOptions.Poller.ActivityMinAge, "activity-min-age", bridge.DefaultOptions.Poller.ActivityMinAge,
		"Wait this long after activity before polling status",
	)
	flags.DurationVar(
		&bridgeOptions.Poller.HeartbeatInterval, "heartbeat-interval", bridge.DefaultOptions.Poller.HeartbeatInterval,
		"Poll status at least this often; 0 disables it",
	)
	flags.DurationVar(
		&bridgeOptions.FollowUpDelay, "follow-up-delay", bridge.DefaultOptions.FollowUpDelay,
		"Delay between a command response and the status request following it",
	)
	flags.DurationVar(
		&bridgeOptions.HomingTimeout, "homing-timeout", bridge.DefaultOptions.HomingTimeout,
		"Give up waiting for homing to complete after this long",
	)
	flags.IntVar(
		&bridgeOptions.MaxOutstandingCommands, "max-outstanding-commands", bridge.DefaultOptions.MaxOutstandingCommands,
		"Maximum number of commands waiting for a response",
	)
	flags.Float64Var(
		&bridgeOptions.JogFeedRate, "jog-feed-rate", bridge.DefaultOptions.JogFeedRate,
		"Jogging feed rate (mm/min)",
	)
	flags.Float64Var(
		&bridgeOptions.ContinuousJogDistance, "jog-continuous-distance", bridge.DefaultOptions.ContinuousJogDistance,
		"Distance of continuous jogs, which are stopped with a jog cancel (mm)",
	)
	flags.Float64Var(
		&gestureOptions.StepDistance, "jog-step-distance", gesture.DefaultOptions.StepDistance,
		"Distance of a single step jog (mm)",
	)
	flags.DurationVar(
		&gestureOptions.HoldThreshold, "jog-hold-threshold", gesture.DefaultOptions.HoldThreshold,
		"Jog keys held for longer than this start a continuous jog",
	)
	flags.BoolVar(
		&unlockOnConnect, "unlock-on-connect", defaultUnlockOnConnect,
		"Send $X after connecting",
	)
}

// NewConn builds a bridge connection from the port and bridge flags.
func NewConn() (*bridge.Conn, error) {
	openPortFn, err := GetOpenPortFn()
	if err != nil {
		return nil, err
	}
	connOptions := bridge.DefaultConnOptions
	connOptions.BaudRate = baudRate
	connOptions.UnlockOnConnect = unlockOnConnect
	return bridge.NewConn(bridge.NewBridge(bridgeOptions), openPortFn, connOptions), nil
}

// runUntilDisconnected runs fn until it returns, or until the connection is lost, in which case
// fn's context is cancelled.
func runUntilDisconnected(ctx context.Context, conn *bridge.Conn, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- fn(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-conn.Done():
		cancel()
		err := <-errCh
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return errors.Join(fmt.Errorf("connection lost: %w", bridge.ErrDisconnected), err)
	}
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		bridgeOptions = bridge.DefaultOptions
		gestureOptions = gesture.DefaultOptions
		unlockOnConnect = defaultUnlockOnConnect
	})
}
