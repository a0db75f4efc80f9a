package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/grbl"
)

// WaitIdlePollInterval is how often WaitIdle requests status reports.
var WaitIdlePollInterval = 200 * time.Millisecond

var waitIdleID atomic.Uint64

// ErrUnknownPosition happens when no status report with a position was received yet.
var ErrUnknownPosition = errors.New("position unknown")

// Script runs Go scripts with access to a "cnc" package driving a bridge:
//
//	import "cnc"
//
//	func main() {
//		if err := cnc.Send("G0 X10"); err != nil {
//			panic(err)
//		}
//	}
type Script struct {
	bridge *bridge.Bridge
	stdout io.Writer
	stderr io.Writer
}

func NewScript(bridge *bridge.Bridge, stdout, stderr io.Writer) *Script {
	return &Script{
		bridge: bridge,
		stdout: stdout,
		stderr: stderr,
	}
}

func (s *Script) send(ctx context.Context, command string) error {
	log.MustLogger(ctx).Info("Send", "command", command)
	return s.bridge.SendWait(ctx, command)
}

func (s *Script) state() string {
	return string(s.bridge.CurrentState().MachineState.State)
}

func (s *Script) position() (grbl.Coordinates, error) {
	snapshot := s.bridge.CurrentState()
	if snapshot.MachinePosition == nil {
		return grbl.Coordinates{}, ErrUnknownPosition
	}
	return *snapshot.MachinePosition, nil
}

func (s *Script) workPosition() (grbl.Coordinates, error) {
	snapshot := s.bridge.CurrentState()
	if snapshot.WorkPosition == nil {
		return grbl.Coordinates{}, ErrUnknownPosition
	}
	return *snapshot.WorkPosition, nil
}

// home runs the homing cycle. Grbl only acknowledges $H once homing is complete.
func (s *Script) home(ctx context.Context) error {
	log.MustLogger(ctx).Info("Homing")
	if err := s.bridge.SendWait(ctx, bridge.HomeCommand); err != nil {
		return err
	}
	return s.waitIdle(ctx)
}

func (s *Script) unlock(ctx context.Context) error {
	log.MustLogger(ctx).Info("Unlocking")
	return s.bridge.SendWait(ctx, bridge.UnlockCommand)
}

func isStatusReport(event bridge.Event) bool {
	return event.Kind == bridge.EventKindFrameReceived && strings.HasPrefix(event.Text, "<")
}

// waitIdle returns once a status report received after the call shows Idle, with no commands
// waiting for a response.
//
//gocyclo:ignore
func (s *Script) waitIdle(ctx context.Context) error {
	logger := log.MustLogger(ctx)

	name := fmt.Sprintf("Script WaitIdle %d", waitIdleID.Add(1))
	eventCh := s.bridge.Events.Subscribe(name, 64)
	defer s.bridge.Events.Unsubscribe(name)

	if err := s.bridge.RequestStatus(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(WaitIdlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.bridge.RequestStatus(ctx); err != nil {
				return err
			}
		case event, ok := <-eventCh:
			if !ok {
				return bridge.ErrDisconnected
			}
			switch {
			case event.Kind == bridge.EventKindDisconnected:
				return bridge.ErrDisconnected
			case event.Kind == bridge.EventKindAlarm:
				return fmt.Errorf("alarm: %s", event.Description)
			case isStatusReport(event):
				snapshot := s.bridge.CurrentState()
				switch snapshot.MachineState.State {
				case grbl.StateAlarm:
					return fmt.Errorf("machine is in alarm state")
				case grbl.StateIdle:
					if snapshot.OutstandingCommands == 0 {
						logger.Debug("Idle")
						return nil
					}
				}
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// symbols builds the "cnc" package exposed to scripts, bound to ctx.
func (s *Script) symbols(ctx context.Context) interp.Exports {
	return interp.Exports{
		"cnc/cnc": map[string]reflect.Value{
			"Coordinates": reflect.ValueOf((*grbl.Coordinates)(nil)),
			"Send": reflect.ValueOf(func(command string) error {
				return s.send(ctx, command)
			}),
			"State":        reflect.ValueOf(s.state),
			"Position":     reflect.ValueOf(s.position),
			"WorkPosition": reflect.ValueOf(s.workPosition),
			"Home": reflect.ValueOf(func() error {
				return s.home(ctx)
			}),
			"Unlock": reflect.ValueOf(func() error {
				return s.unlock(ctx)
			}),
			"WaitIdle": reflect.ValueOf(func() error {
				return s.waitIdle(ctx)
			}),
			"Sleep": reflect.ValueOf(func(d time.Duration) error {
				return sleep(ctx, d)
			}),
		},
	}
}

func (s *Script) newInterpreter(ctx context.Context) (*interp.Interpreter, error) {
	interpreter := interp.New(interp.Options{
		Stdout: s.stdout,
		Stderr: s.stderr,
	})
	if err := interpreter.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load standard library symbols: %w", err)
	}
	if err := interpreter.Use(s.symbols(ctx)); err != nil {
		return nil, fmt.Errorf("failed to load cnc symbols: %w", err)
	}
	return interpreter, nil
}

// Eval runs the script source.
func (s *Script) Eval(ctx context.Context, src string) error {
	interpreter, err := s.newInterpreter(ctx)
	if err != nil {
		return err
	}
	if _, err := interpreter.EvalWithContext(ctx, src); err != nil {
		return fmt.Errorf("script failed: %w", err)
	}
	return nil
}

// Run runs the script at path.
func (s *Script) Run(ctx context.Context, path string) error {
	ctx, logger := log.MustWithAttrs(ctx, "path", path)
	interpreter, err := s.newInterpreter(ctx)
	if err != nil {
		return err
	}
	logger.Info("Running")
	if _, err := interpreter.EvalPathWithContext(ctx, path); err != nil {
		return fmt.Errorf("script %s failed: %w", path, err)
	}
	logger.Info("Finished")
	return nil
}
