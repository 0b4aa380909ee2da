package model

import (
	"math"
	"time"
)

// ObserverState is the simulated receiver position and motion.
// Bearing is degrees clockwise from north in [0,360); Speed is m/s and
// never negative.
type ObserverState struct {
	Latitude  float64 // degrees
	Longitude float64 // degrees
	Altitude  float64 // metres
	Bearing   float64
	Speed     float64
	Accuracy  float64 // metres
	Timestamp time.Time
}

// NormalizeBearing folds deg into [0,360).
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}
