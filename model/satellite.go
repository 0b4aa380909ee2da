package model

import (
	"math"
	"time"
)

// MaxPRN is the size of the single-constellation PRN space. Status masks
// are 32-bit, one bit per PRN.
const MaxPRN = 32

// OrbitalElementSet is one named two-line element set from the orbit catalog.
// It is immutable once parsed; a catalog reload replaces the whole set.
type OrbitalElementSet struct {
	Name    string
	PRN     int // parsed from "(PRN nn)" in the name line, 0 when absent
	NoradID int
	Epoch   time.Time

	MeanMotionDot  float64
	MeanMotionDDot float64
	BStar          float64
	Inclination    float64 // degrees
	RAAN           float64 // degrees
	Eccentricity   float64
	ArgPerigee     float64 // degrees
	MeanAnomaly    float64 // degrees
	MeanMotion     float64 // revolutions per day

	Line1 string
	Line2 string
}

// PropagatedSatellite is an element set evaluated at an epoch for a given
// observer. Angles are radians.
type PropagatedSatellite struct {
	Elements     OrbitalElementSet
	Epoch        time.Time
	Azimuth      float64
	Elevation    float64
	RangeKm      float64
	AboveHorizon bool
}

// ElevationDegrees returns the elevation in degrees.
func (p PropagatedSatellite) ElevationDegrees() float64 {
	return p.Elevation * 180 / math.Pi
}

// AzimuthDegrees returns the azimuth in degrees.
func (p PropagatedSatellite) AzimuthDegrees() float64 {
	return p.Azimuth * 180 / math.Pi
}

// SyntheticSatelliteRecord is one satellite of a synthesized status report.
// Elevation and Azimuth are whole degrees.
type SyntheticSatelliteRecord struct {
	PRN          int
	Elevation    float64
	Azimuth      float64
	SNR          float64
	HasEphemeris bool
	HasAlmanac   bool
	UsedInFix    bool
}

// SatelliteStatus is the wire-shaped status report handed back to the host:
// a count, four parallel arrays and three PRN bitmasks.
type SatelliteStatus struct {
	Count      int
	PRNs       []int
	SNRs       []float64
	Elevations []float64
	Azimuths   []float64

	EphemerisMask uint32
	AlmanacMask   uint32
	UsedInFixMask uint32

	Satellites []SyntheticSatelliteRecord
}

// PRNBit returns the mask bit for prn, or 0 when prn is outside 1..MaxPRN.
func PRNBit(prn int) uint32 {
	if prn < 1 || prn > MaxPRN {
		return 0
	}
	return 1 << uint(prn-1)
}

// Add appends rec to the parallel arrays and ORs its flags into the masks.
func (s *SatelliteStatus) Add(rec SyntheticSatelliteRecord) {
	bit := PRNBit(rec.PRN)
	s.PRNs = append(s.PRNs, rec.PRN)
	s.SNRs = append(s.SNRs, rec.SNR)
	s.Elevations = append(s.Elevations, rec.Elevation)
	s.Azimuths = append(s.Azimuths, rec.Azimuth)
	if rec.HasEphemeris {
		s.EphemerisMask |= bit
	}
	if rec.HasAlmanac {
		s.AlmanacMask |= bit
	}
	if rec.UsedInFix {
		s.UsedInFixMask |= bit
	}
	s.Satellites = append(s.Satellites, rec)
	s.Count = len(s.Satellites)
}

// GenuineSatellite is one entry of a status sample produced by the real
// positioning sensor.
type GenuineSatellite struct {
	PRN          int
	HasAlmanac   bool
	HasEphemeris bool
	UsedInFix    bool
}
