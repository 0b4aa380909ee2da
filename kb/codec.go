package kb

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// wireObserver is the position-channel tuple. Timestamps travel as Unix
// milliseconds.
type wireObserver struct {
	Latitude  float64 `msgpack:"lat"`
	Longitude float64 `msgpack:"lon"`
	Altitude  float64 `msgpack:"alt"`
	Bearing   float64 `msgpack:"brg"`
	Speed     float64 `msgpack:"spd"`
	Accuracy  float64 `msgpack:"acc"`
	Timestamp int64   `msgpack:"ts"`
	Enabled   bool    `msgpack:"on,omitempty"`
}

func toWire(s model.ObserverState, enabled bool) wireObserver {
	var ts int64
	if !s.Timestamp.IsZero() {
		ts = s.Timestamp.UnixMilli()
	}
	return wireObserver{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Altitude:  s.Altitude,
		Bearing:   s.Bearing,
		Speed:     s.Speed,
		Accuracy:  s.Accuracy,
		Timestamp: ts,
		Enabled:   enabled,
	}
}

func (w wireObserver) state() model.ObserverState {
	s := model.ObserverState{
		Latitude:  w.Latitude,
		Longitude: w.Longitude,
		Altitude:  w.Altitude,
		Bearing:   w.Bearing,
		Speed:     w.Speed,
		Accuracy:  w.Accuracy,
	}
	if w.Timestamp != 0 {
		s.Timestamp = time.UnixMilli(w.Timestamp).UTC()
	}
	return s
}

// EncodeObserver serialises an observer state for the position channel.
func EncodeObserver(s model.ObserverState) ([]byte, error) {
	b, err := msgpack.Marshal(toWire(s, false))
	if err != nil {
		return nil, fmt.Errorf("encode observer: %w", err)
	}
	return b, nil
}

// DecodeObserver parses a message produced by EncodeObserver or EncodeUpdate.
func DecodeObserver(b []byte) (model.ObserverState, error) {
	var w wireObserver
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return model.ObserverState{}, fmt.Errorf("decode observer: %w", err)
	}
	return w.state(), nil
}

// EncodeUpdate serialises a position-channel message including the enable
// flag.
func EncodeUpdate(u RemoteUpdate) ([]byte, error) {
	b, err := msgpack.Marshal(toWire(u.Observer, u.Enabled))
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return b, nil
}

// DecodeUpdate parses a position-channel message.
func DecodeUpdate(b []byte) (RemoteUpdate, error) {
	var w wireObserver
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return RemoteUpdate{}, fmt.Errorf("decode update: %w", err)
	}
	return RemoteUpdate{Observer: w.state(), Enabled: w.Enabled}, nil
}
