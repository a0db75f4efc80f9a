package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/grblbridge/broker"
	"github.com/fornellas/grblbridge/grbl"
)

// Clock tells the time. Tests inject a fake one.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var RealClock Clock = realClock{}

var followUpTask = "follow-up status request"

type Options struct {
	Poller PollerOptions
	// Delay between an ok to one of our commands and the status request following it.
	FollowUpDelay          time.Duration
	HomingTimeout          time.Duration
	MaxOutstandingCommands int
	// mm/min
	JogFeedRate float64
	// Distance used for continuous jogging, which is stopped with a jog cancel.
	ContinuousJogDistance float64
	Clock                 Clock
}

var DefaultOptions = Options{
	Poller:                 DefaultPollerOptions,
	FollowUpDelay:          100 * time.Millisecond,
	HomingTimeout:          DefaultHomingTimeout,
	MaxOutstandingCommands: DefaultMaxOutstandingCommands,
	JogFeedRate:            1000,
	ContinuousJogDistance:  1000,
}

// Bridge speaks the Grbl protocol over a transport: it correlates commands with their responses,
// tracks the machine state and requests status reports as needed.
//
// Bytes received must be fed to OnBytesReceived by a single reader, and Tick must be called
// periodically. All methods are safe for concurrent use.
type Bridge struct {
	options Options
	clock   Clock

	// Serializes writes. Must be acquired before mu.
	writeMu sync.Mutex

	mu            sync.Mutex
	writer        io.Writer
	framer        *grbl.Framer
	correlator    *Correlator
	tracker       *Tracker
	poller        *Poller
	scheduler     *Scheduler
	continuousJog bool
	// Called after a write to the transport fails and the state was torn down. Writes are still
	// locked, so it must not send anything.
	onWriteFailure func(error)

	Snapshots *broker.Broker[Snapshot]
	Events    *broker.Broker[Event]
}

func NewBridge(options Options) *Bridge {
	if options.Clock == nil {
		options.Clock = RealClock
	}
	return &Bridge{
		options:    options,
		clock:      options.Clock,
		framer:     grbl.NewFramer(),
		correlator: NewCorrelator(options.MaxOutstandingCommands),
		tracker:    NewTracker(options.HomingTimeout),
		poller:     NewPoller(options.Poller),
		scheduler:  NewScheduler(),
		Snapshots:  broker.NewBroker[Snapshot](),
		Events:     broker.NewBroker[Event](),
	}
}

// Now returns the time according to the bridge clock.
func (b *Bridge) Now() time.Time {
	return b.clock.Now()
}

func (b *Bridge) snapshotLocked(now time.Time) Snapshot {
	snapshot := Snapshot{
		Connected:           b.writer != nil,
		ContinuousJog:       b.continuousJog,
		OutstandingCommands: b.correlator.Len(),
		LastActivity:        b.poller.LastActivity(),
		Time:                now,
	}
	b.tracker.fill(&snapshot)
	return snapshot
}

// CurrentState returns a snapshot of the current state.
func (b *Bridge) CurrentState() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(b.clock.Now())
}

func (b *Bridge) publish(out *outbox) {
	for _, event := range out.events {
		b.Events.Publish(event)
	}
	if out.snapshot {
		b.Snapshots.Publish(b.CurrentState())
	}
}

// teardownLocked drops all state associated with a connection.
func (b *Bridge) teardownLocked(reason error) {
	b.writer = nil
	b.correlator.Clear(reason)
	b.scheduler.Clear()
	b.framer.Reset()
	b.tracker.Reset()
	b.poller.Reset()
	b.continuousJog = false
}

// Attach starts using w to send data to Grbl. Any previous state is discarded.
func (b *Bridge) Attach(ctx context.Context, w io.Writer) {
	logger := log.MustLogger(ctx)
	now := b.clock.Now()

	b.mu.Lock()
	b.teardownLocked(ErrDisconnected)
	b.writer = w
	b.poller.Start()
	b.mu.Unlock()

	logger.Debug("Attached")
	out := &outbox{snapshot: true}
	out.event(EventKindConnected, now, "")
	b.publish(out)
}

// OnDisconnect must be called when the transport is closed: it drops every outstanding command
// and scheduled task, and the machine state becomes Unknown. It does nothing when already
// disconnected.
func (b *Bridge) OnDisconnect(ctx context.Context) {
	b.disconnect(ctx, "")
}

func (b *Bridge) disconnect(ctx context.Context, reason string) {
	logger := log.MustLogger(ctx)
	now := b.clock.Now()

	b.mu.Lock()
	if b.writer == nil {
		b.mu.Unlock()
		return
	}
	outstanding := b.correlator.Len()
	scheduled := b.scheduler.Len()
	b.teardownLocked(ErrDisconnected)
	b.mu.Unlock()

	logger.Debug("Disconnected", "outstanding_commands", outstanding, "scheduled_tasks", scheduled)
	out := &outbox{snapshot: true}
	out.event(EventKindDisconnected, now, reason)
	b.publish(out)
}

func (b *Bridge) writeFailed(ctx context.Context, err error) {
	logger := log.MustLogger(ctx)
	logger.Error("Write failed, disconnecting", "err", err)
	b.disconnect(ctx, err.Error())
	b.mu.Lock()
	onWriteFailure := b.onWriteFailure
	b.mu.Unlock()
	if onWriteFailure != nil {
		onWriteFailure(err)
	}
}

// SetOnWriteFailure registers a function called when writing to the transport fails.
func (b *Bridge) SetOnWriteFailure(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onWriteFailure = fn
}

func writeAll(w io.Writer, data []byte) error {
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("write error: wrote %d bytes, expected %d", n, len(data))
	}
	return nil
}

// sendLocked must be called with writeMu held.
func (b *Bridge) sendLocked(ctx context.Context, command string, now time.Time) (*OutstandingCommand, error) {
	logger := log.MustLogger(ctx)

	if err := validateCommand(command); err != nil {
		return nil, err
	}

	out := &outbox{}
	b.mu.Lock()
	w := b.writer
	if w == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to send %#v: %w", command, ErrDisconnected)
	}
	outstandingCommand, err := b.correlator.Record(command, now)
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to send %#v: %w", command, err)
	}
	if command == StatusRequestCommand {
		b.poller.MarkStatusRequest(now)
	}
	if IsMotionCommand(command) {
		b.poller.MarkActivity(now)
	}
	if IsHomeCommand(command) {
		out.change(b.tracker.StartHoming(now))
		out.event(EventKindHomingStarted, now, command)
		logger.Info("Homing")
	}
	out.snapshot = true
	b.mu.Unlock()

	logger.Debug("→", "command", command, "seq", outstandingCommand.Seq)
	if err := writeAll(w, []byte(command+"\n")); err != nil {
		err = fmt.Errorf("failed to send %#v: %w", command, err)
		b.writeFailed(ctx, err)
		return nil, err
	}

	out.event(EventKindCommandSent, now, command)
	b.publish(out)
	return outstandingCommand, nil
}

func (b *Bridge) send(ctx context.Context, command string) (*OutstandingCommand, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.sendLocked(ctx, command, b.clock.Now())
}

// Send writes a command to Grbl without waiting for its response.
func (b *Bridge) Send(ctx context.Context, command string) error {
	_, err := b.send(ctx, command)
	return err
}

// SendWait writes a command to Grbl and waits for its response. An error:N response is returned
// as a *ProtocolError.
func (b *Bridge) SendWait(ctx context.Context, command string) error {
	outstandingCommand, err := b.send(ctx, command)
	if err != nil {
		return err
	}
	select {
	case err := <-outstandingCommand.Done():
		return err
	case <-ctx.Done():
		return fmt.Errorf("%#v: %w", command, ctx.Err())
	}
}

// writeRealTimeCommandLocked must be called with writeMu held.
func (b *Bridge) writeRealTimeCommandLocked(ctx context.Context, realTimeCommand grbl.RealTimeCommand) error {
	logger := log.MustLogger(ctx)
	now := b.clock.Now()

	b.mu.Lock()
	w := b.writer
	if w == nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to send real-time command %s: %w", realTimeCommand, ErrDisconnected)
	}
	out := &outbox{}
	switch realTimeCommand {
	case grbl.RealTimeCommandJogCancel, grbl.RealTimeCommandFeedHold, grbl.RealTimeCommandSoftReset:
		if b.continuousJog {
			b.continuousJog = false
			out.snapshot = true
		}
	}
	b.mu.Unlock()

	logger.Debug("→", "real_time_command", realTimeCommand.String())
	if err := writeAll(w, []byte{byte(realTimeCommand)}); err != nil {
		err = fmt.Errorf("failed to send real-time command %s: %w", realTimeCommand, err)
		b.writeFailed(ctx, err)
		return err
	}

	out.event(EventKindRealTimeCommandSent, now, realTimeCommand.String())
	b.publish(out)
	return nil
}

// SendRealTimeCommand writes a single real-time command byte. It does not go through command
// correlation, as Grbl does not respond to it.
func (b *Bridge) SendRealTimeCommand(ctx context.Context, realTimeCommand grbl.RealTimeCommand) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.writeRealTimeCommandLocked(ctx, realTimeCommand)
}

// EmergencyStop sends a feed hold.
func (b *Bridge) EmergencyStop(ctx context.Context) error {
	log.MustLogger(ctx).Warn("Emergency stop")
	return b.SendRealTimeCommand(ctx, grbl.RealTimeCommandFeedHold)
}

func (b *Bridge) CancelJog(ctx context.Context) error {
	return b.SendRealTimeCommand(ctx, grbl.RealTimeCommandJogCancel)
}

// Unlock clears an alarm lock.
func (b *Bridge) Unlock(ctx context.Context) error {
	return b.Send(ctx, UnlockCommand)
}

// Home starts the homing cycle. Homing completes when Idle is observed, or times out.
func (b *Bridge) Home(ctx context.Context) error {
	return b.Send(ctx, HomeCommand)
}

// Jog moves the given axis by distance, relative to the current position.
func (b *Bridge) Jog(ctx context.Context, axis grbl.Axis, distance float64) error {
	command, err := JogCommand(axis, distance, b.options.JogFeedRate)
	if err != nil {
		return err
	}
	return b.Send(ctx, command)
}

// StartContinuousJog starts jogging the axis towards direction (1 or -1) until StopContinuousJog
// is called. It does nothing if already jogging continuously.
func (b *Bridge) StartContinuousJog(ctx context.Context, axis grbl.Axis, direction int) error {
	if direction != 1 && direction != -1 {
		return fmt.Errorf("invalid jog direction: %d", direction)
	}
	command, err := JogCommand(axis, float64(direction)*b.options.ContinuousJogDistance, b.options.JogFeedRate)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	jogging := b.continuousJog
	b.mu.Unlock()
	if jogging {
		return nil
	}

	if _, err := b.sendLocked(ctx, command, b.clock.Now()); err != nil {
		return err
	}

	b.mu.Lock()
	b.continuousJog = true
	b.mu.Unlock()
	b.publish(&outbox{snapshot: true})
	return nil
}

// StopContinuousJog stops continuous jogging with a jog cancel. It does nothing when not jogging.
func (b *Bridge) StopContinuousJog(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	jogging := b.continuousJog
	b.mu.Unlock()
	if !jogging {
		return nil
	}

	return b.writeRealTimeCommandLocked(ctx, grbl.RealTimeCommandJogCancel)
}

// requestStatus sends a status request, unless one was sent too recently, in which case it is
// scheduled to the earliest time allowed.
func (b *Bridge) requestStatus(ctx context.Context, now time.Time) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	if b.writer == nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to request status: %w", ErrDisconnected)
	}
	// Its report is still to come.
	if b.correlator.Any(isStatusRequestCommand) {
		b.mu.Unlock()
		return nil
	}
	if !b.poller.StatusRequestAllowed(now) {
		b.scheduler.Schedule(followUpTask, b.poller.NextStatusRequestAllowed())
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	_, err := b.sendLocked(ctx, StatusRequestCommand, now)
	return err
}

// RequestStatus requests a status report now, or as soon as allowed.
func (b *Bridge) RequestStatus(ctx context.Context) error {
	return b.requestStatus(ctx, b.clock.Now())
}

// ClearError forgets the last error message.
func (b *Bridge) ClearError() {
	b.mu.Lock()
	b.tracker.ClearError()
	b.mu.Unlock()
	b.publish(&outbox{snapshot: true})
}

// Tick runs due scheduled tasks, checks the homing timeout and polls for status. It must be called
// periodically, every 50ms or so.
func (b *Bridge) Tick(ctx context.Context, now time.Time) error {
	logger := log.MustLogger(ctx)

	b.mu.Lock()
	if b.writer == nil {
		b.mu.Unlock()
		return nil
	}
	out := &outbox{}
	requestStatus := false
	for _, name := range b.scheduler.Due(now) {
		if name == followUpTask {
			requestStatus = true
		}
	}
	if change := b.tracker.CheckHomingTimeout(now); change.HomingTimedOut {
		logger.Warn("Homing timed out: no Idle state observed", "timeout", b.options.HomingTimeout)
		out.event(EventKindHomingTimedOut, now, "")
		out.change(change)
	}
	if !requestStatus && b.poller.ShouldPoll(now) {
		requestStatus = true
	}
	b.mu.Unlock()

	b.publish(out)

	if requestStatus {
		err := b.requestStatus(ctx, now)
		switch {
		case err == nil, errors.Is(err, ErrDisconnected):
		case errors.Is(err, ErrTooManyOutstandingCommands):
			logger.Warn("Skipping status request", "err", err)
		default:
			return err
		}
	}
	return nil
}

// OnBytesReceived processes bytes read from the transport.
func (b *Bridge) OnBytesReceived(ctx context.Context, data []byte) {
	logger := log.MustLogger(ctx)
	now := b.clock.Now()

	out := &outbox{}
	b.mu.Lock()
	if b.writer == nil {
		b.mu.Unlock()
		logger.Debug("Ignoring bytes received while disconnected", "len", len(data))
		return
	}
	frames, err := b.framer.Feed(data)
	if err != nil {
		logger.Warn("Discarded unframed input", "err", err)
		out.event(EventKindFramesLost, now, err.Error())
	}
	for _, frame := range frames {
		b.handleFrameLocked(logger, now, frame, out)
	}
	b.mu.Unlock()

	b.publish(out)
}

//gocyclo:ignore
func (b *Bridge) handleFrameLocked(logger *slog.Logger, now time.Time, frame string, out *outbox) {
	message := grbl.NewMessage(frame)
	logger.Debug("←", "frame", frame, "type", fmt.Sprintf("%T", message))
	out.event(EventKindFrameReceived, now, frame)

	switch m := message.(type) {
	case *grbl.AckMessage:
		resolution := b.correlator.ResolveAck()
		if resolution.External() {
			logger.Debug("External ok")
			b.poller.MarkActivity(now)
			out.event(EventKindExternalActivity, now, frame)
		} else if resolution.Command.Command != StatusRequestCommand {
			b.scheduler.Schedule(followUpTask, now.Add(b.options.FollowUpDelay))
		}
		out.snapshot = true
	case *grbl.ErrorMessage:
		resolution := b.correlator.ResolveError(m.Code)
		b.poller.MarkActivity(now)
		out.change(b.tracker.Apply(m, now))
		logger.Warn("Error", "command", resolution.Err.Command, "code", m.Code, "description", resolution.Err.Description)
		event := out.event(EventKindProtocolError, now, resolution.Err.Command)
		event.Code = m.Code
		event.Description = resolution.Err.Description
		event.Remedy = resolution.Err.Remedy
		out.snapshot = true
	case *grbl.AlarmMessage:
		b.poller.MarkActivity(now)
		out.change(b.tracker.Apply(m, now))
		description, remedy := m.Description()
		logger.Error("Alarm", "code", m.Code, "description", description)
		event := out.event(EventKindAlarm, now, frame)
		event.Code = m.Code
		event.Description = description
		event.Remedy = remedy
	case *grbl.StatusReportMessage:
		if len(m.Malformed) > 0 {
			logger.Warn("Malformed status report fields", "frame", frame, "fields", m.Malformed)
		}
		if m.MachineState.State == grbl.StateJog && !b.continuousJog && !b.correlator.Any(IsJogCommand) {
			b.poller.MarkActivity(now)
		}
		change := b.tracker.Apply(m, now)
		out.change(change)
		if change.AlarmSet {
			alarm := b.tracker.Alarm()
			logger.Error("Alarm state", "description", alarm.Description)
			event := out.event(EventKindAlarm, now, frame)
			event.Code = alarm.Code
			event.Description = alarm.Description
			event.Remedy = alarm.Remedy
		}
		if change.AlarmCleared {
			logger.Info("Alarm cleared")
			out.event(EventKindAlarmCleared, now, frame)
		}
		if change.HomingCompleted {
			logger.Info("Homing completed")
			out.event(EventKindHomingCompleted, now, frame)
		}
	case *grbl.CoordinateParamsMessage:
		b.poller.MarkActivity(now)
		out.change(b.tracker.Apply(m, now))
	case *grbl.WelcomeMessage:
		dropped := b.correlator.Clear(errors.New("controller reset"))
		b.continuousJog = false
		out.change(b.tracker.Apply(m, now))
		logger.Info("Controller reset", "banner", frame, "dropped_commands", dropped)
		out.event(EventKindControllerReset, now, frame)
	default:
		b.poller.MarkActivity(now)
	}
}
