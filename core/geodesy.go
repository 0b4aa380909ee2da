package core

import (
	"math"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// EarthRadiusM is the mean Earth radius used by the spherical geodesy in
// this package (metres).
const EarthRadiusM = 6371e3

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Displace moves a point distanceM metres along the great circle leaving it
// at bearingRad (radians, 0 = north, clockwise). Negative distances move
// backwards. Longitude is folded into [-180,180).
func Displace(latDeg, lonDeg, distanceM, bearingRad float64) (float64, float64) {
	delta := distanceM / EarthRadiusM

	lat1 := toRadians(latDeg)
	lon1 := toRadians(lonDeg)

	sinLat1, cosLat1 := math.Sincos(lat1)
	sinDelta, cosDelta := math.Sincos(delta)

	lat2 := math.Asin(sinLat1*cosDelta + cosLat1*sinDelta*math.Cos(bearingRad))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearingRad)*sinDelta*cosLat1,
		cosDelta-sinLat1*math.Sin(lat2),
	)
	lon2 = math.Mod(lon2+3*math.Pi, 2*math.Pi) - math.Pi

	return toDegrees(lat2), toDegrees(lon2)
}

// DisplaceObserver returns a copy of s moved distanceM metres along its
// current bearing.
func DisplaceObserver(s model.ObserverState, distanceM float64) model.ObserverState {
	s.Latitude, s.Longitude = Displace(s.Latitude, s.Longitude, distanceM, toRadians(s.Bearing))
	return s
}

// GreatCircleDistance returns the haversine distance between two observer
// positions in metres.
func GreatCircleDistance(a, b model.ObserverState) float64 {
	return haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := phi2 - phi1
	dLambda := toRadians(lon2 - lon1)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}
