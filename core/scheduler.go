package core

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

const (
	// DefaultMaxPassAge is how long a propagation pass stays fresh.
	DefaultMaxPassAge = 10 * time.Second
	// DefaultMaxObserverDrift is how far the observer may move before a
	// pass is recomputed (metres).
	DefaultMaxObserverDrift = 500.0
)

// ElementSource supplies the element sets to propagate. *Catalog satisfies it.
type ElementSource interface {
	Entries() []model.OrbitalElementSet
}

// SchedulerStats counts how requests were served.
type SchedulerStats struct {
	Hits   int64
	Misses int64
	Resets int64
}

// RecomputeScheduler caches the last propagation pass and decides when it
// must be recomputed. It starts stale; once a pass exists it is reused until
// it is older than MaxAge or the observer has moved more than MaxDrift
// metres from where it was computed.
type RecomputeScheduler struct {
	mu sync.Mutex

	source     ElementSource
	propagator *PositionPropagator
	metrics    MetricsRecorder

	maxAge   time.Duration
	maxDrift float64

	fresh        bool
	lastEpoch    time.Time
	lastObserver model.ObserverState
	cached       []model.PropagatedSatellite

	stats SchedulerStats
}

// NewRecomputeScheduler builds a scheduler over source. Zero thresholds use
// the defaults.
func NewRecomputeScheduler(source ElementSource, propagator *PositionPropagator, maxAge time.Duration, maxDrift float64, metrics MetricsRecorder) *RecomputeScheduler {
	if maxAge <= 0 {
		maxAge = DefaultMaxPassAge
	}
	if maxDrift <= 0 {
		maxDrift = DefaultMaxObserverDrift
	}
	return &RecomputeScheduler{
		source:     source,
		propagator: propagator,
		metrics:    metricsOrNop(metrics),
		maxAge:     maxAge,
		maxDrift:   maxDrift,
	}
}

// RequestVisible returns the propagated satellites for observer at now,
// recomputing only when the cached pass is stale.
func (s *RecomputeScheduler) RequestVisible(ctx context.Context, observer model.ObserverState, now time.Time) []model.PropagatedSatellite {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh && !s.needsRecompute(observer, now) {
		s.stats.Hits++
		s.metrics.IncSchedulerRequest(true)
		return clonePropagated(s.cached)
	}

	s.stats.Misses++
	s.metrics.IncSchedulerRequest(false)
	s.cached = s.propagator.Propagate(ctx, s.source.Entries(), now, observer)
	s.lastEpoch = now
	s.lastObserver = observer
	s.fresh = true
	return clonePropagated(s.cached)
}

func (s *RecomputeScheduler) needsRecompute(observer model.ObserverState, now time.Time) bool {
	if now.Sub(s.lastEpoch) > s.maxAge {
		return true
	}
	return GreatCircleDistance(s.lastObserver, observer) > s.maxDrift
}

// Fresh reports whether a cached pass exists.
func (s *RecomputeScheduler) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fresh
}

// Reset discards the cached pass. It is only needed after the catalog has
// been replaced.
func (s *RecomputeScheduler) Reset() {
	s.mu.Lock()
	s.fresh = false
	s.cached = nil
	s.stats.Resets++
	s.mu.Unlock()
}

// Stats returns request counters.
func (s *RecomputeScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func clonePropagated(src []model.PropagatedSatellite) []model.PropagatedSatellite {
	if src == nil {
		return nil
	}
	out := make([]model.PropagatedSatellite, len(src))
	copy(out, src)
	return out
}
