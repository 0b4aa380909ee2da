package core

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

type countingMetrics struct {
	nopMetrics
	failures     int
	propagations int
	hits, misses int
	fixDrops     int
	drWrites     int
	drThrottled  int
	profile      model.DeviceCapabilityProfile
	visible      int
}

func (m *countingMetrics) IncPropagationFailures()               { m.failures++ }
func (m *countingMetrics) ObservePropagation(time.Duration, int) { m.propagations++ }
func (m *countingMetrics) IncFixDrops()                          { m.fixDrops++ }
func (m *countingMetrics) SetProfile(p model.DeviceCapabilityProfile) {
	m.profile = p
}
func (m *countingMetrics) SetVisibleSatellites(n int) { m.visible = n }
func (m *countingMetrics) IncSchedulerRequest(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
func (m *countingMetrics) IncDeadReckoning(throttled bool) {
	if throttled {
		m.drThrottled++
	} else {
		m.drWrites++
	}
}

func TestPositionPropagatorOmitsFailingSatellites(t *testing.T) {
	solver := LookAngleSolverFunc(func(set model.OrbitalElementSet, _ time.Time, _ model.ObserverState) (LookAngles, error) {
		switch set.Name {
		case "fails":
			return LookAngles{}, ErrPropagationFailure
		case "panics":
			panic("boom")
		case "below":
			return LookAngles{Azimuth: 1, Elevation: -0.2}, nil
		}
		return LookAngles{Azimuth: 2, Elevation: 0.5, RangeKm: 21000}, nil
	})
	metrics := &countingMetrics{}
	p := NewPositionPropagator(solver, logging.Noop(), metrics)

	sets := []model.OrbitalElementSet{
		{Name: "ok", PRN: 1},
		{Name: "fails", PRN: 2},
		{Name: "panics", PRN: 3},
		{Name: "below", PRN: 4},
	}
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := p.Propagate(context.Background(), sets, epoch, model.ObserverState{Latitude: 1, Longitude: 1})

	if len(out) != 2 {
		t.Fatalf("got %d satellites, want 2", len(out))
	}
	if out[0].Elements.Name != "ok" || !out[0].AboveHorizon || out[0].RangeKm != 21000 {
		t.Fatalf("unexpected first result %+v", out[0])
	}
	if out[1].Elements.Name != "below" || out[1].AboveHorizon {
		t.Fatalf("unexpected second result %+v", out[1])
	}
	if !out[0].Epoch.Equal(epoch) {
		t.Fatalf("epoch = %v, want %v", out[0].Epoch, epoch)
	}
	if metrics.failures != 2 || metrics.propagations != 1 {
		t.Fatalf("metrics: failures=%d propagations=%d", metrics.failures, metrics.propagations)
	}
}

func TestPositionPropagatorEmptyCatalog(t *testing.T) {
	p := NewPositionPropagator(LookAngleSolverFunc(func(model.OrbitalElementSet, time.Time, model.ObserverState) (LookAngles, error) {
		t.Fatalf("solver must not be called")
		return LookAngles{}, nil
	}), nil, nil)
	if out := p.Propagate(context.Background(), nil, time.Now(), model.ObserverState{}); len(out) != 0 {
		t.Fatalf("got %d satellites from empty catalog", len(out))
	}
}

func TestSGP4SolverPropagatesTestdata(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "gps-ops.txt"))
	if err != nil {
		t.Fatalf("open testdata: %v", err)
	}
	defer f.Close()
	sets, errs := ParseCatalog(f)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	solver, err := NewSGP4Solver(0)
	if err != nil {
		t.Fatalf("NewSGP4Solver: %v", err)
	}
	p := NewPositionPropagator(solver, nil, nil)
	observer := model.ObserverState{Latitude: 52.52, Longitude: 13.40, Altitude: 34}
	epoch := sets[0].Epoch.Add(30 * time.Minute)

	out := p.Propagate(context.Background(), sets, epoch, observer)
	if len(out) != len(sets) {
		t.Fatalf("propagated %d of %d satellites", len(out), len(sets))
	}
	above := 0
	for _, s := range out {
		if s.Elevation < -math.Pi/2 || s.Elevation > math.Pi/2 {
			t.Fatalf("%s elevation %v out of range", s.Elements.Name, s.Elevation)
		}
		if s.Azimuth < 0 || s.Azimuth > 2*math.Pi {
			t.Fatalf("%s azimuth %v out of range", s.Elements.Name, s.Azimuth)
		}
		if s.AboveHorizon {
			above++
		}
	}
	if above == 0 {
		t.Fatalf("no satellites above the horizon")
	}

	// second pass is served from the record cache and must agree
	again := p.Propagate(context.Background(), sets, epoch, observer)
	for i := range out {
		if out[i].Elevation != again[i].Elevation || out[i].Azimuth != again[i].Azimuth {
			t.Fatalf("cached record produced different look angles for %s", out[i].Elements.Name)
		}
	}
}

func TestSGP4SolverRejectsMalformedElements(t *testing.T) {
	solver, err := NewSGP4Solver(4)
	if err != nil {
		t.Fatalf("NewSGP4Solver: %v", err)
	}
	set := model.OrbitalElementSet{Name: "bad", Line1: prn13Line1, Line2: prn13Line2[:30]}
	_, err = solver.Solve(set, time.Now(), model.ObserverState{Latitude: 1, Longitude: 1})
	if !errors.Is(err, ErrPropagationFailure) {
		t.Fatalf("err = %v, want ErrPropagationFailure", err)
	}
}
