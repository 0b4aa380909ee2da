package core

import (
	"math"
	"math/rand"
	"time"

	"github.com/MichaelTJones/pcg"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

const (
	// SeedSalt is added to timestamps when deriving noise seeds.
	SeedSalt = 234213370

	// DefaultFixDropRate is the probability that a satellite otherwise used
	// in the fix is reported as unused.
	DefaultFixDropRate = 0.0043

	snrSigma     = 1.2
	bearingSigma = 2.0 // degrees
	minFixSpread = 5.0 // metres
)

const pcgStream = 0xda3e39cb94b95bdb

// pcgSource adapts a PCG32 generator to math/rand.Source so the standard
// distributions (NormFloat64) can draw from it.
type pcgSource struct {
	r *pcg.PCG32
}

func (s *pcgSource) Seed(seed int64) {
	s.r.Seed(uint64(seed), pcgStream)
}

func (s *pcgSource) Int63() int64 {
	hi := uint64(s.r.Random())
	lo := uint64(s.r.Random())
	return int64((hi<<32 | lo) >> 1)
}

// SeedFromTimestamp derives a deterministic noise seed from an external
// timestamp.
func SeedFromTimestamp(t time.Time) int64 {
	return t.UnixMilli() + SeedSalt
}

// NoiseModel is the seeded pseudo-random source shared by the synthesizer
// and the reported fix. It is not safe for concurrent use; Engine serializes
// access.
type NoiseModel struct {
	src     *pcgSource
	rng     *rand.Rand
	enabled bool
}

// NewNoiseModel returns a generator seeded with seed. When enabled is false
// every Perturb helper returns its input unchanged.
func NewNoiseModel(seed int64, enabled bool) *NoiseModel {
	src := &pcgSource{r: pcg.NewPCG32()}
	src.Seed(seed)
	return &NoiseModel{src: src, rng: rand.New(src), enabled: enabled}
}

// Enabled reports whether perturbations are applied.
func (n *NoiseModel) Enabled() bool { return n.enabled }

// SetEnabled toggles perturbations without touching the generator state.
func (n *NoiseModel) SetEnabled(on bool) { n.enabled = on }

// Seed resets the generator to a known state.
func (n *NoiseModel) Seed(seed int64) {
	n.rng.Seed(seed)
}

// Reseed derives the generator state from an external timestamp.
func (n *NoiseModel) Reseed(ts time.Time) {
	n.Seed(SeedFromTimestamp(ts))
}

// Gaussian draws from N(mean, std²).
func (n *NoiseModel) Gaussian(mean, std float64) float64 {
	return mean + std*n.rng.NormFloat64()
}

// Uniform draws from [0,1).
func (n *NoiseModel) Uniform() float64 {
	return float64(n.src.r.Random()) / (1 << 32)
}

// PerturbSNR adds N(0,1.2) to snr and rounds to a whole dB-Hz.
func (n *NoiseModel) PerturbSNR(snr float64) float64 {
	if !n.enabled {
		return snr
	}
	return math.Round(snr + n.Gaussian(0, snrSigma))
}

// KeepFix reports whether a satellite stays in the fix given dropRate.
func (n *NoiseModel) KeepFix(dropRate float64) bool {
	if !n.enabled || dropRate <= 0 {
		return true
	}
	return n.Uniform() > dropRate
}

// PerturbBearing adds N(0,2°) and folds the result into [0,360).
func (n *NoiseModel) PerturbBearing(deg float64) float64 {
	if !n.enabled {
		return deg
	}
	return model.NormalizeBearing(deg + n.Gaussian(0, bearingSigma))
}

// PerturbSpeed jitters speed by N(0,0.2) above 1 m/s and N(0,0.05) below,
// never returning a negative value.
func (n *NoiseModel) PerturbSpeed(speed float64) float64 {
	if !n.enabled {
		return speed
	}
	sigma := 0.05
	if speed > 1 {
		sigma = 0.2
	}
	return math.Max(0, speed+n.Gaussian(0, sigma))
}

// PerturbFix returns s with its bearing and speed jittered and its position
// displaced by N(0,1)·max(5,accuracy)/6 metres along a uniformly drawn
// bearing.
func (n *NoiseModel) PerturbFix(s model.ObserverState) model.ObserverState {
	if !n.enabled {
		return s
	}
	s.Bearing = n.PerturbBearing(s.Bearing)
	s.Speed = n.PerturbSpeed(s.Speed)

	spread := math.Max(minFixSpread, s.Accuracy)
	dist := n.Gaussian(0, 1) * spread / 6
	theta := n.Uniform() * 2 * math.Pi
	s.Latitude, s.Longitude = Displace(s.Latitude, s.Longitude, dist, theta)
	return s
}
