package gesture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/grblbridge/grbl"
)

// Jogger is what gestures are turned into. It is implemented by *bridge.Bridge.
type Jogger interface {
	Jog(ctx context.Context, axis grbl.Axis, distance float64) error
	StartContinuousJog(ctx context.Context, axis grbl.Axis, direction int) error
	StopContinuousJog(ctx context.Context) error
}

type Options struct {
	// Presses held at least this long become continuous jogs.
	HoldThreshold time.Duration
	// For inputs without release events (terminals): a release is inferred when no key repeat
	// arrives for ReleaseTimeout.
	InferRelease   bool
	ReleaseTimeout time.Duration
	// Distance of a single step jog.
	StepDistance float64
}

var DefaultOptions = Options{
	HoldThreshold:  300 * time.Millisecond,
	ReleaseTimeout: 600 * time.Millisecond,
	StepDistance:   1,
}

// Debouncer turns press / release of a jog key into either a single step jog, or a continuous
// jog stopped on release.
//
// Tick must be called periodically while a key is pressed.
type Debouncer struct {
	options Options
	jogger  Jogger

	mu          sync.Mutex
	pressed     bool
	axis        grbl.Axis
	direction   int
	pressedAt   time.Time
	lastPressAt time.Time
	repeated    bool
	continuous  bool
}

func NewDebouncer(jogger Jogger, options Options) *Debouncer {
	if options.HoldThreshold <= 0 {
		options.HoldThreshold = DefaultOptions.HoldThreshold
	}
	if options.ReleaseTimeout <= 0 {
		options.ReleaseTimeout = DefaultOptions.ReleaseTimeout
	}
	if options.StepDistance <= 0 {
		options.StepDistance = DefaultOptions.StepDistance
	}
	return &Debouncer{
		options: options,
		jogger:  jogger,
	}
}

// Press registers a key press (or a key repeat) for jogging axis towards direction (1 or -1).
func (d *Debouncer) Press(ctx context.Context, axis grbl.Axis, direction int, now time.Time) error {
	if direction != 1 && direction != -1 {
		return fmt.Errorf("invalid jog direction: %d", direction)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pressed && (d.axis != axis || d.direction != direction) {
		if err := d.releaseLocked(ctx, now); err != nil {
			return err
		}
	}

	if d.pressed {
		d.lastPressAt = now
		if now.Sub(d.pressedAt) >= d.options.HoldThreshold {
			d.repeated = true
		}
		return d.maybeStartContinuousLocked(ctx, now)
	}

	d.pressed = true
	d.axis = axis
	d.direction = direction
	d.pressedAt = now
	d.lastPressAt = now
	d.repeated = false
	d.continuous = false
	return nil
}

// Release registers the key release. It does nothing if no key is pressed.
func (d *Debouncer) Release(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked(ctx, now)
}

func (d *Debouncer) releaseLocked(ctx context.Context, now time.Time) error {
	if !d.pressed {
		return nil
	}
	d.pressed = false
	logger := log.MustLogger(ctx)

	if d.continuous {
		d.continuous = false
		logger.Debug("Stopping continuous jog", "axis", d.axis, "held", now.Sub(d.pressedAt))
		return d.jogger.StopContinuousJog(ctx)
	}

	distance := float64(d.direction) * d.options.StepDistance
	logger.Debug("Step jog", "axis", d.axis, "distance", distance)
	return d.jogger.Jog(ctx, d.axis, distance)
}

func (d *Debouncer) maybeStartContinuousLocked(ctx context.Context, now time.Time) error {
	if d.continuous {
		return nil
	}
	if now.Sub(d.pressedAt) < d.options.HoldThreshold {
		return nil
	}
	if d.options.InferRelease && !d.repeated {
		return nil
	}
	log.MustLogger(ctx).Debug("Starting continuous jog", "axis", d.axis, "direction", d.direction)
	if err := d.jogger.StartContinuousJog(ctx, d.axis, d.direction); err != nil {
		d.pressed = false
		return err
	}
	d.continuous = true
	return nil
}

// Tick starts continuous jogging once the hold threshold is reached, and infers releases.
func (d *Debouncer) Tick(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.pressed {
		return nil
	}

	if d.options.InferRelease && now.Sub(d.lastPressAt) > d.options.ReleaseTimeout {
		return d.releaseLocked(ctx, now)
	}

	return d.maybeStartContinuousLocked(ctx, now)
}

// Abort forgets the current gesture without jogging. It is used when the jog is cancelled by
// other means.
func (d *Debouncer) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pressed = false
	d.continuous = false
}

// Pressed tells whether a gesture is in progress.
func (d *Debouncer) Pressed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pressed
}

// Continuous tells whether the current gesture turned into a continuous jog.
func (d *Debouncer) Continuous() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continuous
}
