package timectrl

import (
	"context"
	"math"
	"sync"
	"time"
)

// Clock is the time source used by the synthesis engine. Tests and replays
// substitute a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime jumps the clock to t.
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Cadences for the periodic driver.
const (
	DefaultCadence = 20 * time.Millisecond
	SlowCadence    = 50 * time.Millisecond
)

// CadenceForRefreshRate picks the update period for a display refreshing at
// hz: 50 ms on 60 Hz panels, 20 ms otherwise.
func CadenceForRefreshRate(hz float64) time.Duration {
	if math.Abs(hz-60) < 0.5 {
		return SlowCadence
	}
	return DefaultCadence
}

// Mode describes how the Driver advances time.
type Mode int

const (
	// RealTime waits one Tick of wall-clock time between steps.
	RealTime Mode = iota
	// Accelerated steps as quickly as the loop can run while still
	// advancing by Tick, for replays.
	Accelerated
)

// Driver calls its listeners once per Tick with the current time. In
// Accelerated mode it also advances the ManualClock it owns.
type Driver struct {
	mu    sync.RWMutex
	Start time.Time
	Tick  time.Duration
	Mode  Mode

	clock     *ManualClock
	listeners []func(time.Time)
}

// NewDriver constructs a driver starting at start.
func NewDriver(start time.Time, tick time.Duration, mode Mode) *Driver {
	if tick <= 0 {
		tick = DefaultCadence
	}
	return &Driver{
		Start: start,
		Tick:  tick,
		Mode:  mode,
		clock: NewManualClock(start),
	}
}

// Now returns the driver's current time. Implements Clock.
func (d *Driver) Now() time.Time {
	if d.Mode == RealTime {
		return time.Now()
	}
	return d.clock.Now()
}

// AddListener registers a callback invoked on every tick.
func (d *Driver) AddListener(fn func(time.Time)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Run steps until ctx is cancelled or duration (if positive) has been
// covered. Listeners run on the calling goroutine.
func (d *Driver) Run(ctx context.Context, duration time.Duration) error {
	var ticker *time.Ticker
	if d.Mode == RealTime {
		ticker = time.NewTicker(d.Tick)
		defer ticker.Stop()
	}

	d.clock.SetTime(d.Start)
	elapsed := time.Duration(0)
	for {
		if duration > 0 && elapsed >= duration {
			return nil
		}

		var now time.Time
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now = <-ticker.C:
			}
		} else {
			if err := ctx.Err(); err != nil {
				return err
			}
			now = d.clock.Advance(d.Tick)
		}
		elapsed += d.Tick

		d.mu.RLock()
		listeners := append([]func(time.Time){}, d.listeners...)
		d.mu.RUnlock()
		for _, fn := range listeners {
			fn(now)
		}
	}
}

// StartAsync runs the driver in a separate goroutine. The returned channel
// is closed when it finishes.
func (d *Driver) StartAsync(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx, duration)
	}()
	return done
}
