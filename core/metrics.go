package core

import (
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// MetricsRecorder receives measurements from the synthesis pipeline.
// observability.SynthCollector satisfies it; nil recorders are replaced
// with a no-op.
type MetricsRecorder interface {
	SetCatalogSize(n int)
	AddCatalogParseErrors(n int)
	ObservePropagation(d time.Duration, satellites int)
	IncPropagationFailures()
	IncSchedulerRequest(hit bool)
	SetVisibleSatellites(n int)
	IncFixDrops()
	SetProfile(p model.DeviceCapabilityProfile)
	IncDeadReckoning(throttled bool)
}

type nopMetrics struct{}

func (nopMetrics) SetCatalogSize(int)                       {}
func (nopMetrics) AddCatalogParseErrors(int)                {}
func (nopMetrics) ObservePropagation(time.Duration, int)    {}
func (nopMetrics) IncPropagationFailures()                  {}
func (nopMetrics) IncSchedulerRequest(bool)                 {}
func (nopMetrics) SetVisibleSatellites(int)                 {}
func (nopMetrics) IncFixDrops()                             {}
func (nopMetrics) SetProfile(model.DeviceCapabilityProfile) {}
func (nopMetrics) IncDeadReckoning(bool)                    {}

func metricsOrNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
