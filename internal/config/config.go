// Package config loads engine and server settings from defaults, an
// optional config file and SYNTH_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/observability"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// EnvPrefix prefixes every environment override, e.g.
// SYNTH_ENGINE_NOISE_ENABLED=false.
const EnvPrefix = "SYNTH"

var (
	ErrInvalidElevation   = errors.New("config: min elevation must be in [0, 90)")
	ErrInvalidFixDropRate = errors.New("config: fix drop rate must be at most 1")
	ErrInvalidThreshold   = errors.New("config: recompute thresholds must not be negative")
	ErrInvalidCacheSize   = errors.New("config: solver cache size must be positive")
	ErrInvalidObserver    = errors.New("config: observer latitude/longitude out of range")
	ErrInvalidAddress     = errors.New("config: listen address must not be empty")
	ErrInvalidRefreshRate = errors.New("config: refresh rate must not be negative")
	ErrInvalidSpeed       = errors.New("config: commanded speed must not be negative")
	ErrInvalidSampleRatio = errors.New("config: tracing sample ratio must be in [0, 1]")
	ErrInvalidExporter    = errors.New("config: tracing exporter must be stdout or otlp")
)

// Config is the complete daemon configuration.
type Config struct {
	CatalogPath string
	Enabled     bool

	Engine   core.EngineConfig
	Observer ObserverSettings
	Server   ServerSettings
	Tracing  observability.TracingConfig
}

// ObserverSettings is the starting position and commanded motion.
type ObserverSettings struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Bearing   float64
	Accuracy  float64
	// Commanded velocity applied by the dead-reckoning driver.
	Speed    float64
	TurnRate float64
}

// ServerSettings covers the network surfaces.
type ServerSettings struct {
	ListenAddr    string
	MetricsAddr   string
	RefreshRateHz float64
}

// State returns the configured starting observer state at t.
func (o ObserverSettings) State(t time.Time) model.ObserverState {
	return model.ObserverState{
		Latitude:  o.Latitude,
		Longitude: o.Longitude,
		Altitude:  o.Altitude,
		Bearing:   model.NormalizeBearing(o.Bearing),
		Accuracy:  o.Accuracy,
		Timestamp: t,
	}
}

// NewViper returns a viper instance with defaults and environment binding
// in place.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the OTLP exporter convention name is accepted alongside the keyed one
	_ = v.BindEnv("tracing.endpoint", EnvPrefix+"_TRACING_ENDPOINT", EnvPrefix+"_OTLP_ENDPOINT")
	return v
}

func setDefaults(v *viper.Viper) {
	d := core.DefaultEngineConfig()
	v.SetDefault("catalog.path", "")
	v.SetDefault("enabled", true)

	v.SetDefault("engine.min_elevation", d.MinElevation)
	v.SetDefault("engine.max_pass_age", d.MaxPassAge)
	v.SetDefault("engine.max_observer_drift", d.MaxObserverDrift)
	v.SetDefault("engine.fix_drop_rate", d.FixDropRate)
	v.SetDefault("engine.noise_enabled", d.NoiseEnabled)
	v.SetDefault("engine.seed", int64(0))
	v.SetDefault("engine.solver_cache_size", d.SolverCacheSize)

	v.SetDefault("observer.latitude", 0.0)
	v.SetDefault("observer.longitude", 0.0)
	v.SetDefault("observer.altitude", 0.0)
	v.SetDefault("observer.bearing", 0.0)
	v.SetDefault("observer.accuracy", 5.0)
	v.SetDefault("observer.speed", 0.0)
	v.SetDefault("observer.turn_rate", 0.0)

	v.SetDefault("server.listen", ":50061")
	v.SetDefault("server.metrics_addr", ":9464")
	v.SetDefault("server.refresh_rate_hz", 60.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "gnss-synthd")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads path (when non-empty) into v and decodes the result. Keys set
// on v before the call, such as command-line overrides, take precedence.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v), nil
}

// FromViper decodes a Config without validating it.
func FromViper(v *viper.Viper) Config {
	return Config{
		CatalogPath: v.GetString("catalog.path"),
		Enabled:     v.GetBool("enabled"),
		Engine: core.EngineConfig{
			MinElevation:     v.GetFloat64("engine.min_elevation"),
			MaxPassAge:       v.GetDuration("engine.max_pass_age"),
			MaxObserverDrift: v.GetFloat64("engine.max_observer_drift"),
			FixDropRate:      v.GetFloat64("engine.fix_drop_rate"),
			NoiseEnabled:     v.GetBool("engine.noise_enabled"),
			Seed:             v.GetInt64("engine.seed"),
			SolverCacheSize:  v.GetInt("engine.solver_cache_size"),
		},
		Observer: ObserverSettings{
			Latitude:  v.GetFloat64("observer.latitude"),
			Longitude: v.GetFloat64("observer.longitude"),
			Altitude:  v.GetFloat64("observer.altitude"),
			Bearing:   v.GetFloat64("observer.bearing"),
			Accuracy:  v.GetFloat64("observer.accuracy"),
			Speed:     v.GetFloat64("observer.speed"),
			TurnRate:  v.GetFloat64("observer.turn_rate"),
		},
		Server: ServerSettings{
			ListenAddr:    v.GetString("server.listen"),
			MetricsAddr:   v.GetString("server.metrics_addr"),
			RefreshRateHz: v.GetFloat64("server.refresh_rate_hz"),
		},
		Tracing: observability.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    strings.ToLower(strings.TrimSpace(v.GetString("tracing.exporter"))),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
	}
}

// Validate checks value ranges. The returned error wraps one of the
// ErrInvalid sentinels.
func (c Config) Validate() error {
	e := c.Engine
	if math.IsNaN(e.MinElevation) || e.MinElevation < 0 || e.MinElevation >= 90 {
		return fmt.Errorf("%w: %v", ErrInvalidElevation, e.MinElevation)
	}
	if e.FixDropRate > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidFixDropRate, e.FixDropRate)
	}
	if e.MaxPassAge < 0 || e.MaxObserverDrift < 0 {
		return fmt.Errorf("%w: age %v drift %v", ErrInvalidThreshold, e.MaxPassAge, e.MaxObserverDrift)
	}
	if e.SolverCacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, e.SolverCacheSize)
	}

	o := c.Observer
	if math.Abs(o.Latitude) > 90 || math.Abs(o.Longitude) > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidObserver, o.Latitude, o.Longitude)
	}
	if o.Speed < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, o.Speed)
	}

	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return ErrInvalidAddress
	}
	if c.Server.RefreshRateHz < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRefreshRate, c.Server.RefreshRateHz)
	}

	tr := c.Tracing
	if math.IsNaN(tr.SampleRatio) || tr.SampleRatio < 0 || tr.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, tr.SampleRatio)
	}
	switch tr.Exporter {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExporter, tr.Exporter)
	}
	return nil
}
