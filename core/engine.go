package core

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// EngineConfig tunes the synthesis pipeline. Zero thresholds and a zero
// cache size select defaults. FixDropRate 0 never drops a fix; a negative
// rate selects DefaultFixDropRate. NoiseEnabled is taken as given.
type EngineConfig struct {
	MinElevation     float64       // degrees, default DefaultMinElevation
	MaxPassAge       time.Duration // default DefaultMaxPassAge
	MaxObserverDrift float64       // metres, default DefaultMaxObserverDrift
	FixDropRate      float64       // negative selects DefaultFixDropRate
	NoiseEnabled     bool
	Seed             int64 // 0 derives a seed from the wall clock
	SolverCacheSize  int
}

// DefaultEngineConfig returns the stock configuration with noise enabled.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinElevation:     DefaultMinElevation,
		MaxPassAge:       DefaultMaxPassAge,
		MaxObserverDrift: DefaultMaxObserverDrift,
		FixDropRate:      DefaultFixDropRate,
		NoiseEnabled:     true,
		SolverCacheSize:  DefaultSolverCacheSize,
	}
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = metricsOrNop(m)
	}
}

// WithSolver replaces the SGP4 solver, typically with a stub in tests.
func WithSolver(s LookAngleSolver) EngineOption {
	return func(e *Engine) {
		e.solver = s
	}
}

// WithClock replaces the wall clock used for propagation epochs.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns all mutable synthesis state and serializes access to it. The
// periodic dead-reckoning driver and the telemetry path may call it from
// different goroutines.
type Engine struct {
	mu sync.Mutex

	cfg     EngineConfig
	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time
	solver  LookAngleSolver

	store      *kb.KnowledgeBase
	catalog    *Catalog
	propagator *PositionPropagator
	scheduler  *RecomputeScheduler
	profile    *ProfileLearner
	noise      *NoiseModel
	synth      *Synthesizer
	integrator *VelocityIntegrator

	hasFix        bool
	lastFixSource time.Time
	lastFix       model.ObserverState
}

// NewEngine wires a synthesis engine around store.
func NewEngine(cfg EngineConfig, store *kb.KnowledgeBase, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		store = kb.NewKnowledgeBase(model.ObserverState{})
	}
	if cfg.MinElevation <= 0 {
		cfg.MinElevation = DefaultMinElevation
	}

	e := &Engine{
		cfg:     cfg,
		log:     logging.Noop(),
		metrics: nopMetrics{},
		now:     time.Now,
		store:   store,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.solver == nil {
		solver, err := NewSGP4Solver(cfg.SolverCacheSize)
		if err != nil {
			return nil, err
		}
		e.solver = solver
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = SeedFromTimestamp(e.now())
	}

	e.catalog = NewCatalog(e.log, e.metrics)
	e.propagator = NewPositionPropagator(e.solver, e.log, e.metrics)
	e.scheduler = NewRecomputeScheduler(e.catalog, e.propagator, cfg.MaxPassAge, cfg.MaxObserverDrift, e.metrics)
	e.profile = NewProfileLearner(e.log, e.metrics)
	e.noise = NewNoiseModel(seed, cfg.NoiseEnabled)
	e.synth = NewSynthesizer(e.noise, e.profile, cfg.FixDropRate, e.log, e.metrics)
	e.integrator = NewVelocityIntegrator(store, e.metrics)
	return e, nil
}

// KnowledgeBase exposes the observer store so callers can subscribe to
// position changes. Writes go through the Engine so they serialize with
// dead reckoning; listeners run under the engine lock and must not call
// back into the Engine.
func (e *Engine) KnowledgeBase() *kb.KnowledgeBase { return e.store }

// Catalog exposes the orbit catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// LoadCatalog replaces the orbit catalog from a file and invalidates the
// cached propagation pass.
func (e *Engine) LoadCatalog(ctx context.Context, path string) (int, error) {
	n, err := e.catalog.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	e.scheduler.Reset()
	return n, nil
}

// LoadCatalogReader is LoadCatalog for an already-open stream.
func (e *Engine) LoadCatalogReader(ctx context.Context, r io.Reader, source string) (int, error) {
	n, err := e.catalog.LoadReader(ctx, r, source)
	if err != nil {
		return 0, err
	}
	e.scheduler.Reset()
	return n, nil
}

// RequestVisibleSatellites synthesizes a status report for the current
// observer at the current time.
func (e *Engine) RequestVisibleSatellites(ctx context.Context) model.SatelliteStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requestVisibleLocked(ctx)
}

func (e *Engine) requestVisibleLocked(ctx context.Context) model.SatelliteStatus {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.RequestVisibleSatellites")
	defer span.End()

	observer := e.store.Observer()
	sats := e.scheduler.RequestVisible(ctx, observer, e.now())
	visible := Visible(sats, e.cfg.MinElevation)
	e.metrics.SetVisibleSatellites(len(visible))

	status := e.synth.Synthesize(ctx, visible)
	span.SetAttributes(
		attribute.Int("satellites.propagated", len(sats)),
		attribute.Int("satellites.reported", status.Count),
	)
	return status
}

// InterceptStatus handles a genuine status sample from the real sensor. The
// sample always feeds the device profile. When synthesis is enabled the
// synthetic report is returned with true; otherwise the caller keeps the
// genuine data.
func (e *Engine) InterceptStatus(ctx context.Context, genuine []model.GenuineSatellite) (model.SatelliteStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.profile.Observe(ctx, genuine)
	if !e.store.Enabled() {
		return model.SatelliteStatus{}, false
	}
	return e.requestVisibleLocked(ctx), true
}

// UpdateVelocity advances the observer by dead reckoning.
func (e *Engine) UpdateVelocity(speedTrans, speedRot float64, now time.Time) (model.ObserverState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.integrator.UpdateVelocity(speedTrans, speedRot, now)
}

// SetObserverPosition replaces the observer position. Unset-looking
// positions are rejected with kb.ErrInvalidObserver and the previous
// position is kept.
func (e *Engine) SetObserverPosition(s model.ObserverState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SetObserver(s)
}

// ApplyRemote applies an observer update from the position channel.
func (e *Engine) ApplyRemote(u kb.RemoteUpdate) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ApplyRemote(u)
}

// Observer returns the current observer state.
func (e *Engine) Observer() model.ObserverState { return e.store.Observer() }

// SetEnabled toggles whether synthetic telemetry replaces genuine data.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.SetEnabled(on)
}

// Enabled reports whether synthesis is active.
func (e *Engine) Enabled() bool { return e.store.Enabled() }

// ReportedFix returns the position fix to report in place of a genuine fix
// stamped sourceTimestamp. A new fix is drawn only when the timestamp
// changes; the noise model is reseeded from it so the same genuine fix
// always yields the same synthetic one.
func (e *Engine) ReportedFix(ctx context.Context, sourceTimestamp time.Time) model.ObserverState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasFix && sourceTimestamp.Equal(e.lastFixSource) {
		return e.lastFix
	}
	e.noise.Reseed(sourceTimestamp)
	fix := e.noise.PerturbFix(e.store.Observer())
	fix.Timestamp = sourceTimestamp

	e.hasFix = true
	e.lastFixSource = sourceTimestamp
	e.lastFix = fix
	e.log.Debug(ctx, "reported fix redrawn",
		logging.Any("latitude", fix.Latitude),
		logging.Any("longitude", fix.Longitude),
	)
	return fix
}

// Profile returns the learned device profile.
func (e *Engine) Profile() model.DeviceCapabilityProfile { return e.profile.Profile() }

// SchedulerStats returns the propagation cache counters.
func (e *Engine) SchedulerStats() SchedulerStats { return e.scheduler.Stats() }

// SetNoiseEnabled toggles noise injection.
func (e *Engine) SetNoiseEnabled(on bool) {
	e.mu.Lock()
	e.noise.SetEnabled(on)
	e.mu.Unlock()
}
