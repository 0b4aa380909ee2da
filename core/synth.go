package core

import (
	"context"
	"math"

	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

const (
	// DefaultMinElevation is the visibility mask angle in degrees.
	// Satellites at or below it are not reported.
	DefaultMinElevation = 10.0

	// almanac data is only reported above this elevation (degrees)
	almanacElevation = 20.0

	snrFloor = 20.0
	snrSpan  = 70.0
)

// Visible returns the satellites above the horizon whose elevation is
// strictly greater than minElevationDeg.
func Visible(sats []model.PropagatedSatellite, minElevationDeg float64) []model.PropagatedSatellite {
	out := make([]model.PropagatedSatellite, 0, len(sats))
	for _, s := range sats {
		if !s.AboveHorizon || s.ElevationDegrees() <= minElevationDeg {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BaselineSNR is the noiseless carrier-to-noise density for a satellite at
// elevation el degrees: 20 dB-Hz at the horizon up to 90 at zenith.
func BaselineSNR(el float64) float64 {
	return snrFloor + snrSpan*el/90
}

// ProfileSource exposes the learned device capabilities.
type ProfileSource interface {
	Profile() model.DeviceCapabilityProfile
}

// Synthesizer turns visible satellites into a status report consistent with
// the learned device profile.
type Synthesizer struct {
	noise       *NoiseModel
	profile     ProfileSource
	fixDropRate float64
	log         logging.Logger
	metrics     MetricsRecorder
}

// NewSynthesizer returns a synthesizer drawing from noise. A negative
// fixDropRate selects DefaultFixDropRate.
func NewSynthesizer(noise *NoiseModel, profile ProfileSource, fixDropRate float64, log logging.Logger, metrics MetricsRecorder) *Synthesizer {
	if fixDropRate < 0 {
		fixDropRate = DefaultFixDropRate
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Synthesizer{
		noise:       noise,
		profile:     profile,
		fixDropRate: fixDropRate,
		log:         log,
		metrics:     metricsOrNop(metrics),
	}
}

// Synthesize builds a SatelliteStatus from already-filtered satellites.
// Satellites without a PRN in 1..32 are skipped.
func (s *Synthesizer) Synthesize(ctx context.Context, sats []model.PropagatedSatellite) model.SatelliteStatus {
	profile := s.profile.Profile()
	status := model.SatelliteStatus{
		PRNs:       make([]int, 0, len(sats)),
		SNRs:       make([]float64, 0, len(sats)),
		Elevations: make([]float64, 0, len(sats)),
		Azimuths:   make([]float64, 0, len(sats)),
		Satellites: make([]model.SyntheticSatelliteRecord, 0, len(sats)),
	}

	for _, sat := range sats {
		prn := sat.Elements.PRN
		if model.PRNBit(prn) == 0 {
			s.log.Debug(ctx, "skipping satellite without usable PRN",
				logging.String("satellite", sat.Elements.Name),
				logging.Int("prn", prn),
			)
			continue
		}

		el := sat.ElevationDegrees()
		rec := model.SyntheticSatelliteRecord{
			PRN:          prn,
			Elevation:    math.Round(el),
			Azimuth:      roundAzimuth(sat.AzimuthDegrees()),
			SNR:          s.noise.PerturbSNR(BaselineSNR(el)),
			HasAlmanac:   el > almanacElevation && !profile.AlmanacAlwaysFalse,
			HasEphemeris: el > DefaultMinElevation && !profile.EphemerisAlwaysFalse,
			UsedInFix:    el > DefaultMinElevation && !profile.FixAlwaysFalse,
		}
		if rec.UsedInFix && !s.noise.KeepFix(s.fixDropRate) {
			rec.UsedInFix = false
			s.metrics.IncFixDrops()
		}
		status.Add(rec)
	}
	return status
}

func roundAzimuth(deg float64) float64 {
	az := math.Round(model.NormalizeBearing(deg))
	if az >= 360 {
		az = 0
	}
	return az
}
