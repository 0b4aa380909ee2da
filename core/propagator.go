package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

const tracerName = "github.com/signalsfoundry/gnss-telemetry-synth/core"

var (
	// ErrPropagationFailure marks a satellite that could not be evaluated at
	// the requested epoch. The satellite is omitted from the pass.
	ErrPropagationFailure = errors.New("propagation failure")
	// ErrDegenerateOrbit marks element sets that describe no usable orbit.
	ErrDegenerateOrbit = errors.New("degenerate orbit")
)

// Plausible geocentric radius for an SGP4 result, kilometres.
const (
	minOrbitRadiusKm = 6200
	maxOrbitRadiusKm = 50000
)

// DefaultSolverCacheSize bounds the number of initialised SGP4 records kept
// by SGP4Solver.
const DefaultSolverCacheSize = 128

// LookAngles is the topocentric direction to a satellite. Angles are
// radians; azimuth is clockwise from north.
type LookAngles struct {
	Azimuth   float64
	Elevation float64
	RangeKm   float64
}

// LookAngleSolver evaluates an element set at an epoch as seen from an
// observer.
type LookAngleSolver interface {
	Solve(set model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) (LookAngles, error)
}

// LookAngleSolverFunc adapts a function to LookAngleSolver.
type LookAngleSolverFunc func(set model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) (LookAngles, error)

// Solve calls f.
func (f LookAngleSolverFunc) Solve(set model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) (LookAngles, error) {
	return f(set, epoch, observer)
}

// SGP4Solver propagates element sets with go-satellite using the WGS72
// gravity model. Initialised records are cached by their element lines.
type SGP4Solver struct {
	records *lru.Cache[string, satellite.Satellite]
}

// NewSGP4Solver returns a solver caching up to cacheSize records.
func NewSGP4Solver(cacheSize int) (*SGP4Solver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSolverCacheSize
	}
	records, err := lru.New[string, satellite.Satellite](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sgp4 record cache: %w", err)
	}
	return &SGP4Solver{records: records}, nil
}

// Solve implements LookAngleSolver.
func (s *SGP4Solver) Solve(set model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) (LookAngles, error) {
	sat, err := s.record(set)
	if err != nil {
		return LookAngles{}, err
	}

	epoch = epoch.UTC()
	year, month, day := epoch.Date()
	hour, min, sec := epoch.Clock()

	// go-satellite works in kilometres
	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	r := math.Sqrt(posECI.X*posECI.X + posECI.Y*posECI.Y + posECI.Z*posECI.Z)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return LookAngles{}, fmt.Errorf("%s: non-finite position: %w", set.Name, ErrPropagationFailure)
	}
	if r < minOrbitRadiusKm || r > maxOrbitRadiusKm {
		return LookAngles{}, fmt.Errorf("%s: radius %.0f km out of range: %w", set.Name, r, ErrPropagationFailure)
	}

	site := satellite.LatLong{
		Latitude:  toRadians(observer.Latitude),
		Longitude: toRadians(observer.Longitude),
	}
	look := satellite.ECIToLookAngles(posECI, site, observer.Altitude/1000, julian.TimeToJD(epoch))
	if math.IsNaN(look.Az) || math.IsNaN(look.El) {
		return LookAngles{}, fmt.Errorf("%s: non-finite look angles: %w", set.Name, ErrPropagationFailure)
	}

	return LookAngles{Azimuth: look.Az, Elevation: look.El, RangeKm: look.Rg}, nil
}

func (s *SGP4Solver) record(set model.OrbitalElementSet) (sat satellite.Satellite, err error) {
	key := set.Line1 + "\n" + set.Line2
	if cached, ok := s.records.Get(key); ok {
		return cached, nil
	}

	// The library aborts the process on fields it cannot parse, so only
	// lines that pass ParseElementSet are handed to it.
	if _, perr := ParseElementSet(set.Name, set.Line1, set.Line2); perr != nil {
		return sat, fmt.Errorf("%s: %w: %v", set.Name, ErrPropagationFailure, perr)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: sgp4 init panicked: %v: %w", set.Name, r, ErrPropagationFailure)
		}
	}()
	sat = satellite.TLEToSat(set.Line1, set.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return sat, fmt.Errorf("%s: sgp4 init error %d: %w", set.Name, sat.Error, ErrDegenerateOrbit)
	}
	s.records.Add(key, sat)
	return sat, nil
}

// PositionPropagator evaluates a catalog at an epoch for an observer,
// omitting satellites the solver cannot handle.
type PositionPropagator struct {
	solver  LookAngleSolver
	log     logging.Logger
	metrics MetricsRecorder
}

// NewPositionPropagator wraps solver.
func NewPositionPropagator(solver LookAngleSolver, log logging.Logger, metrics MetricsRecorder) *PositionPropagator {
	if log == nil {
		log = logging.Noop()
	}
	return &PositionPropagator{solver: solver, log: log, metrics: metricsOrNop(metrics)}
}

// Propagate returns one PropagatedSatellite per element set that could be
// evaluated. It never fails; an empty catalog yields an empty slice.
func (p *PositionPropagator) Propagate(ctx context.Context, sets []model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) []model.PropagatedSatellite {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Propagate")
	defer span.End()

	start := time.Now()
	out := make([]model.PropagatedSatellite, 0, len(sets))
	failures := 0
	for _, set := range sets {
		look, err := p.solve(set, epoch, observer)
		if err != nil {
			failures++
			p.metrics.IncPropagationFailures()
			p.log.Debug(ctx, "satellite omitted from pass",
				logging.String("satellite", set.Name),
				logging.String("error", err.Error()),
			)
			continue
		}
		out = append(out, model.PropagatedSatellite{
			Elements:     set,
			Epoch:        epoch,
			Azimuth:      look.Azimuth,
			Elevation:    look.Elevation,
			RangeKm:      look.RangeKm,
			AboveHorizon: look.Elevation > 0,
		})
	}

	p.metrics.ObservePropagation(time.Since(start), len(out))
	span.SetAttributes(
		attribute.Int("catalog.size", len(sets)),
		attribute.Int("propagation.satellites", len(out)),
		attribute.Int("propagation.failures", failures),
	)
	if failures > 0 && len(out) == 0 {
		span.SetStatus(codes.Error, "all satellites failed to propagate")
	}
	return out
}

func (p *PositionPropagator) solve(set model.OrbitalElementSet, epoch time.Time, observer model.ObserverState) (look LookAngles, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: solver panicked: %v: %w", set.Name, r, ErrPropagationFailure)
		}
	}()
	return p.solver.Solve(set, epoch, observer)
}
