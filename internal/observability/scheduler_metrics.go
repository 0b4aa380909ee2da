package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (c *SynthCollector) registerSchedulerMetrics(reg prometheus.Registerer) error {
	var err error
	if c.PropagationDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "synth_propagation_duration_seconds",
		Help:    "Duration of full-catalog propagation passes.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "synth_propagation_duration_seconds"); err != nil {
		return err
	}
	if c.PropagationFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "synth_propagation_failures_total",
		Help: "Satellites omitted from a pass because they could not be propagated.",
	}), "synth_propagation_failures_total"); err != nil {
		return err
	}
	if c.SchedulerRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_scheduler_requests_total",
		Help: "Visibility requests, labeled by whether the cached pass was reused.",
	}, []string{"result"}), "synth_scheduler_requests_total"); err != nil {
		return err
	}
	if c.SchedulerHitRatio, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "synth_scheduler_cache_hit_ratio",
		Help: "Hit ratio for the recompute scheduler's cached pass.",
	}), "synth_scheduler_cache_hit_ratio"); err != nil {
		return err
	}
	return nil
}

// ObservePropagation records a propagation pass.
func (c *SynthCollector) ObservePropagation(d time.Duration, satellites int) {
	if c == nil || c.PropagationDuration == nil {
		return
	}
	c.PropagationDuration.Observe(d.Seconds())
}

// IncPropagationFailures counts a satellite omitted from a pass.
func (c *SynthCollector) IncPropagationFailures() {
	if c == nil || c.PropagationFailures == nil {
		return
	}
	c.PropagationFailures.Inc()
}

// IncSchedulerRequest counts a visibility request and refreshes the hit ratio.
func (c *SynthCollector) IncSchedulerRequest(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	if c.SchedulerRequests != nil {
		c.SchedulerRequests.WithLabelValues(result).Inc()
	}

	c.ratioMu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	ratio := c.hits / (c.hits + c.misses)
	c.ratioMu.Unlock()
	c.SetSchedulerHitRatio(ratio)
}

// SetSchedulerHitRatio sets the cache hit ratio, clamped to [0,1].
func (c *SynthCollector) SetSchedulerHitRatio(ratio float64) {
	if c == nil || c.SchedulerHitRatio == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.SchedulerHitRatio.Set(ratio)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
