package core

import (
	"context"
	"sync"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// PRNs above this belong to another constellation.
const maxSingleConstellationPRN = 50

// ProfileLearner watches genuine status samples and records which
// capabilities the real sensor reports. Flags only move from true to false.
type ProfileLearner struct {
	mu      sync.RWMutex
	profile model.DeviceCapabilityProfile

	log     logging.Logger
	metrics MetricsRecorder
}

// NewProfileLearner returns a learner with every flag set.
func NewProfileLearner(log logging.Logger, metrics MetricsRecorder) *ProfileLearner {
	if log == nil {
		log = logging.Noop()
	}
	l := &ProfileLearner{
		profile: model.NewDeviceCapabilityProfile(),
		log:     log,
		metrics: metricsOrNop(metrics),
	}
	l.metrics.SetProfile(l.profile)
	return l
}

// Observe folds a genuine sample into the profile and reports whether any
// flag changed.
func (l *ProfileLearner) Observe(ctx context.Context, genuine []model.GenuineSatellite) bool {
	l.mu.Lock()
	before := l.profile
	p := l.profile
	for _, g := range genuine {
		if g.PRN > maxSingleConstellationPRN {
			p.SingleConstellationOnly = false
			continue
		}
		if g.HasAlmanac {
			p.AlmanacAlwaysFalse = false
		}
		if g.HasEphemeris {
			p.EphemerisAlwaysFalse = false
		}
		if g.UsedInFix {
			p.FixAlwaysFalse = false
		}
	}
	l.profile = p
	l.mu.Unlock()

	if p == before {
		return false
	}
	l.metrics.SetProfile(p)
	l.log.Info(ctx, "device profile updated",
		logging.Any("ephemeris_always_false", p.EphemerisAlwaysFalse),
		logging.Any("almanac_always_false", p.AlmanacAlwaysFalse),
		logging.Any("fix_always_false", p.FixAlwaysFalse),
		logging.Any("single_constellation_only", p.SingleConstellationOnly),
	)
	return true
}

// Profile returns a copy of the current profile.
func (l *ProfileLearner) Profile() model.DeviceCapabilityProfile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.profile
}
