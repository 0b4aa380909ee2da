package rpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

func statusToStruct(s model.SatelliteStatus) *structpb.Struct {
	prns := make([]interface{}, 0, len(s.PRNs))
	for _, p := range s.PRNs {
		prns = append(prns, float64(p))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"count":            structpb.NewNumberValue(float64(s.Count)),
		"prns":             mustList(prns),
		"snrs":             floatList(s.SNRs),
		"elevations":       floatList(s.Elevations),
		"azimuths":         floatList(s.Azimuths),
		"ephemeris_mask":   structpb.NewNumberValue(float64(s.EphemerisMask)),
		"almanac_mask":     structpb.NewNumberValue(float64(s.AlmanacMask)),
		"used_in_fix_mask": structpb.NewNumberValue(float64(s.UsedInFixMask)),
	}}
}

func floatList(vals []float64) *structpb.Value {
	out := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
	}
	return mustList(out)
}

// mustList only sees float64 elements, which NewList always accepts.
func mustList(vals []interface{}) *structpb.Value {
	l, err := structpb.NewList(vals)
	if err != nil {
		panic(err)
	}
	return structpb.NewListValue(l)
}

func observerToStruct(s model.ObserverState) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"latitude":  structpb.NewNumberValue(s.Latitude),
		"longitude": structpb.NewNumberValue(s.Longitude),
		"altitude":  structpb.NewNumberValue(s.Altitude),
		"bearing":   structpb.NewNumberValue(s.Bearing),
		"speed":     structpb.NewNumberValue(s.Speed),
		"accuracy":  structpb.NewNumberValue(s.Accuracy),
	}
	if !s.Timestamp.IsZero() {
		fields["timestamp"] = structpb.NewStringValue(s.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

func observerFromStruct(st *structpb.Struct) (model.ObserverState, error) {
	if st == nil {
		return model.ObserverState{}, fmt.Errorf("%w: empty observer", ErrInvalidRequest)
	}
	var s model.ObserverState
	var err error
	for key, dst := range map[string]*float64{
		"latitude":  &s.Latitude,
		"longitude": &s.Longitude,
		"altitude":  &s.Altitude,
		"bearing":   &s.Bearing,
		"speed":     &s.Speed,
		"accuracy":  &s.Accuracy,
	} {
		if *dst, err = numberField(st, key); err != nil {
			return model.ObserverState{}, err
		}
	}
	s.Bearing = model.NormalizeBearing(s.Bearing)
	if s.Speed < 0 {
		return model.ObserverState{}, fmt.Errorf("%w: negative speed", ErrInvalidRequest)
	}
	if v, ok := st.GetFields()["timestamp"]; ok {
		raw, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return model.ObserverState{}, fmt.Errorf("%w: timestamp must be an RFC 3339 string", ErrInvalidRequest)
		}
		if s.Timestamp, err = time.Parse(time.RFC3339Nano, raw.StringValue); err != nil {
			return model.ObserverState{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidRequest, err)
		}
	}
	return s, nil
}

func genuineFromStruct(st *structpb.Struct) ([]model.GenuineSatellite, error) {
	v, ok := st.GetFields()["satellites"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: satellites must be a list", ErrInvalidRequest)
	}
	out := make([]model.GenuineSatellite, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		sat := item.GetStructValue()
		if sat == nil {
			return nil, fmt.Errorf("%w: satellites[%d] is not an object", ErrInvalidRequest, i)
		}
		prn, err := numberField(sat, "prn")
		if err != nil {
			return nil, err
		}
		out = append(out, model.GenuineSatellite{
			PRN:          int(prn),
			HasEphemeris: sat.GetFields()["has_ephemeris"].GetBoolValue(),
			HasAlmanac:   sat.GetFields()["has_almanac"].GetBoolValue(),
			UsedInFix:    sat.GetFields()["used_in_fix"].GetBoolValue(),
		})
	}
	return out, nil
}

func profileToStruct(p model.DeviceCapabilityProfile) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ephemeris_always_false":    structpb.NewBoolValue(p.EphemerisAlwaysFalse),
		"almanac_always_false":      structpb.NewBoolValue(p.AlmanacAlwaysFalse),
		"fix_always_false":          structpb.NewBoolValue(p.FixAlwaysFalse),
		"single_constellation_only": structpb.NewBoolValue(p.SingleConstellationOnly),
	}}
}

// numberField returns 0 for a missing key and an error for a non-number.
func numberField(st *structpb.Struct, key string) (float64, error) {
	v, ok := st.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, nil
}
