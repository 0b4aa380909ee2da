package model

// DeviceCapabilityProfile records which capabilities the genuine sensor has
// been seen to report. Every flag starts true and only ever moves to false.
type DeviceCapabilityProfile struct {
	EphemerisAlwaysFalse    bool
	AlmanacAlwaysFalse      bool
	FixAlwaysFalse          bool
	SingleConstellationOnly bool
}

// NewDeviceCapabilityProfile returns the initial, most pessimistic profile.
func NewDeviceCapabilityProfile() DeviceCapabilityProfile {
	return DeviceCapabilityProfile{
		EphemerisAlwaysFalse:    true,
		AlmanacAlwaysFalse:      true,
		FixAlwaysFalse:          true,
		SingleConstellationOnly: true,
	}
}
