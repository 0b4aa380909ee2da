package core

import (
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

const (
	// MaxStep caps the time integrated by a single velocity update.
	MaxStep = time.Second
	// MinStepInterval throttles updates arriving faster than this.
	MinStepInterval = 5 * time.Millisecond
	// MaxStepDistance caps the distance covered by one update (metres).
	MaxStepDistance = 100.0

	// MaxCommandSpeed is the fastest commanded walking speed accepted from
	// a controller (m/s).
	MaxCommandSpeed = 4.2

	stillTransSpeed = 0.1 // m/s
	stillRotSpeed   = 1.0 // deg/s
)

// ObserverStore is the observer state the integrator reads and writes.
// *kb.KnowledgeBase satisfies it.
type ObserverStore interface {
	Observer() model.ObserverState
	UpdateObserver(model.ObserverState)
}

// VelocityIntegrator moves the observer from commanded translational and
// rotational speeds. It is not safe for concurrent use.
type VelocityIntegrator struct {
	store   ObserverStore
	metrics MetricsRecorder

	lastStep  time.Time
	started   bool
	lastStill bool
}

// NewVelocityIntegrator returns an integrator writing to store.
func NewVelocityIntegrator(store ObserverStore, metrics MetricsRecorder) *VelocityIntegrator {
	return &VelocityIntegrator{store: store, metrics: metricsOrNop(metrics)}
}

// UpdateVelocity integrates speedTrans (m/s, negative is backwards) and
// speedRot (deg/s, counter-clockwise positive) over the time since the last
// accepted update. It returns the observer state and whether it was written.
//
// Updates less than MinStepInterval apart are dropped unless they command a
// stop; a stop goes through once, and repeated stops inside the window are
// dropped too.
func (v *VelocityIntegrator) UpdateVelocity(speedTrans, speedRot float64, now time.Time) (model.ObserverState, bool) {
	if !v.started {
		v.lastStep = now
		v.started = true
	}

	stepDiff := now.Sub(v.lastStep)
	if stepDiff < 0 {
		stepDiff = 0
	}
	if stepDiff > MaxStep {
		stepDiff = MaxStep
	}

	still := math.Abs(speedTrans) < stillTransSpeed && math.Abs(speedRot) < stillRotSpeed
	if stepDiff < MinStepInterval && (!still || v.lastStill) {
		v.metrics.IncDeadReckoning(true)
		return v.store.Observer(), false
	}
	v.lastStep = now
	v.lastStill = still

	secs := stepDiff.Seconds()
	s := v.store.Observer()
	s.Bearing = model.NormalizeBearing(s.Bearing - speedRot*secs)

	dist := speedTrans * secs
	dist = math.Max(-MaxStepDistance, math.Min(MaxStepDistance, dist))
	s = DisplaceObserver(s, dist)
	s.Timestamp = now
	s.Speed = math.Abs(speedTrans)

	v.store.UpdateObserver(s)
	v.metrics.IncDeadReckoning(false)
	return s, true
}

// ClampCommandSpeed bounds a commanded translational speed to
// ±MaxCommandSpeed.
func ClampCommandSpeed(speed float64) float64 {
	return math.Max(-MaxCommandSpeed, math.Min(MaxCommandSpeed, speed))
}

// VelocityCommand holds the commanded speeds a periodic driver feeds into
// UpdateVelocity. It is safe for concurrent use.
type VelocityCommand struct {
	mu    sync.RWMutex
	trans float64
	rot   float64
}

// Set stores a new command. The translational speed is clamped with
// ClampCommandSpeed.
func (c *VelocityCommand) Set(speedTrans, speedRot float64) {
	c.mu.Lock()
	c.trans = ClampCommandSpeed(speedTrans)
	c.rot = speedRot
	c.mu.Unlock()
}

// Get returns the current command.
func (c *VelocityCommand) Get() (speedTrans, speedRot float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trans, c.rot
}
