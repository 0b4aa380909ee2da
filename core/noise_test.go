package core

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

func TestNoiseModelIsDeterministicForSeed(t *testing.T) {
	a := NewNoiseModel(42, true)
	b := NewNoiseModel(42, true)
	for i := 0; i < 100; i++ {
		if x, y := a.Gaussian(0, 1), b.Gaussian(0, 1); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
		if x, y := a.Uniform(), b.Uniform(); x != y {
			t.Fatalf("uniform draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestNoiseModelReseedRestartsSequence(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := NewNoiseModel(1, true)
	n.Reseed(ts)
	first := []float64{n.Gaussian(0, 1), n.Uniform(), n.Gaussian(0, 1)}

	n.Gaussian(0, 1)
	n.Reseed(ts)
	second := []float64{n.Gaussian(0, 1), n.Uniform(), n.Gaussian(0, 1)}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draw %d after reseed = %v, want %v", i, second[i], first[i])
		}
	}
	if got, want := SeedFromTimestamp(ts), ts.UnixMilli()+SeedSalt; got != want {
		t.Fatalf("SeedFromTimestamp = %d, want %d", got, want)
	}
}

func TestNoiseModelGaussianMoments(t *testing.T) {
	n := NewNoiseModel(7, true)
	samples := make([]float64, 20000)
	for i := range samples {
		samples[i] = n.Gaussian(0, 1.2)
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if math.Abs(mean) > 0.05 {
		t.Fatalf("mean = %v, want ~0", mean)
	}
	if math.Abs(std-1.2) > 0.05 {
		t.Fatalf("std = %v, want ~1.2", std)
	}
}

func TestNoiseModelUniformRange(t *testing.T) {
	n := NewNoiseModel(99, true)
	samples := make([]float64, 10000)
	for i := range samples {
		u := n.Uniform()
		if u < 0 || u >= 1 {
			t.Fatalf("uniform draw %v outside [0,1)", u)
		}
		samples[i] = u
	}
	if mean := stat.Mean(samples, nil); math.Abs(mean-0.5) > 0.02 {
		t.Fatalf("uniform mean = %v, want ~0.5", mean)
	}
}

func TestNoiseModelDisabledIsIdentity(t *testing.T) {
	n := NewNoiseModel(3, false)
	if got := n.PerturbSNR(47.3); got != 47.3 {
		t.Fatalf("PerturbSNR = %v, want 47.3", got)
	}
	if got := n.PerturbBearing(123.4); got != 123.4 {
		t.Fatalf("PerturbBearing = %v, want 123.4", got)
	}
	if got := n.PerturbSpeed(2.5); got != 2.5 {
		t.Fatalf("PerturbSpeed = %v, want 2.5", got)
	}
	for i := 0; i < 1000; i++ {
		if !n.KeepFix(1) {
			t.Fatalf("KeepFix dropped a satellite with noise disabled")
		}
	}
	s := model.ObserverState{Latitude: 10, Longitude: 20, Bearing: 90, Speed: 1, Accuracy: 8}
	if got := n.PerturbFix(s); got != s {
		t.Fatalf("PerturbFix = %+v, want %+v", got, s)
	}
}

func TestNoiseModelPerturbations(t *testing.T) {
	n := NewNoiseModel(11, true)
	for i := 0; i < 2000; i++ {
		if snr := n.PerturbSNR(40); snr != math.Round(snr) {
			t.Fatalf("PerturbSNR returned non-integer %v", snr)
		}
		if b := n.PerturbBearing(359.5); b < 0 || b >= 360 {
			t.Fatalf("PerturbBearing returned %v outside [0,360)", b)
		}
		if s := n.PerturbSpeed(0.01); s < 0 {
			t.Fatalf("PerturbSpeed returned negative %v", s)
		}
	}

	s := model.ObserverState{Latitude: 45, Longitude: 7, Accuracy: 3}
	var maxMove float64
	for i := 0; i < 2000; i++ {
		moved := n.PerturbFix(s)
		if d := GreatCircleDistance(s, moved); d > maxMove {
			maxMove = d
		}
	}
	// spread is max(5, 3)/6 m per sigma; 2000 draws stay well under 6 sigma
	if maxMove == 0 || maxMove > 5 {
		t.Fatalf("max fix displacement = %v m, want (0, 5]", maxMove)
	}
}

func TestNoiseModelKeepFixDropRate(t *testing.T) {
	n := NewNoiseModel(5, true)
	const draws = 200000
	dropped := 0
	for i := 0; i < draws; i++ {
		if !n.KeepFix(DefaultFixDropRate) {
			dropped++
		}
	}
	rate := float64(dropped) / draws
	if math.Abs(rate-DefaultFixDropRate) > 0.0015 {
		t.Fatalf("drop rate = %v, want ~%v", rate, DefaultFixDropRate)
	}
}
