package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/observability"
)

func TestDefaultsMatchEngineDefaults(t *testing.T) {
	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := core.DefaultEngineConfig()
	if cfg.Engine != want {
		t.Fatalf("engine config = %+v, want %+v", cfg.Engine, want)
	}
	if !cfg.Enabled || cfg.Server.ListenAddr == "" || cfg.Server.RefreshRateHz != 60 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synth.yaml")
	body := `
catalog:
  path: /var/lib/synth/gps-ops.txt.zst
engine:
  min_elevation: 15
  max_pass_age: 30s
  noise_enabled: false
  seed: 42
observer:
  latitude: 52.52
  longitude: 13.405
  speed: 1.4
server:
  listen: 127.0.0.1:7000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CatalogPath != "/var/lib/synth/gps-ops.txt.zst" {
		t.Fatalf("catalog path = %q", cfg.CatalogPath)
	}
	if cfg.Engine.MinElevation != 15 || cfg.Engine.MaxPassAge != 30*time.Second {
		t.Fatalf("engine thresholds = %+v", cfg.Engine)
	}
	if cfg.Engine.NoiseEnabled || cfg.Engine.Seed != 42 {
		t.Fatalf("noise settings = %+v", cfg.Engine)
	}
	if cfg.Engine.MaxObserverDrift != core.DefaultMaxObserverDrift {
		t.Fatalf("unset key lost its default: %v", cfg.Engine.MaxObserverDrift)
	}
	if cfg.Observer.Latitude != 52.52 || cfg.Observer.Speed != 1.4 {
		t.Fatalf("observer = %+v", cfg.Observer)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:7000" {
		t.Fatalf("listen = %q", cfg.Server.ListenAddr)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNTH_ENGINE_NOISE_ENABLED", "false")
	t.Setenv("SYNTH_ENGINE_MAX_PASS_AGE", "2s")
	t.Setenv("SYNTH_SERVER_REFRESH_RATE_HZ", "50")

	cfg := FromViper(NewViper())
	if cfg.Engine.NoiseEnabled {
		t.Fatalf("SYNTH_ENGINE_NOISE_ENABLED not applied")
	}
	if cfg.Engine.MaxPassAge != 2*time.Second {
		t.Fatalf("max pass age = %v", cfg.Engine.MaxPassAge)
	}
	if cfg.Server.RefreshRateHz != 50 {
		t.Fatalf("refresh rate = %v", cfg.Server.RefreshRateHz)
	}
}

func TestTracingSettings(t *testing.T) {
	cfg := FromViper(NewViper())
	want := observability.TracingConfig{
		ServiceName: "gnss-synthd",
		Exporter:    "stdout",
		SampleRatio: 1,
	}
	if cfg.Tracing != want {
		t.Fatalf("tracing defaults = %+v, want %+v", cfg.Tracing, want)
	}

	t.Setenv("SYNTH_TRACING_ENABLED", "true")
	t.Setenv("SYNTH_TRACING_EXPORTER", "OTLP")
	t.Setenv("SYNTH_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("SYNTH_OTLP_ENDPOINT", "collector:4317")

	cfg = FromViper(NewViper())
	want = observability.TracingConfig{
		Enabled:     true,
		ServiceName: "gnss-synthd",
		Exporter:    "otlp",
		Endpoint:    "collector:4317",
		SampleRatio: 0.25,
	}
	if cfg.Tracing != want {
		t.Fatalf("tracing from env = %+v, want %+v", cfg.Tracing, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExplicitSetBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synth.json")
	if err := os.WriteFile(path, []byte(`{"engine":{"min_elevation":20}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v := NewViper()
	v.Set("engine.min_elevation", 5.0)
	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MinElevation != 5 {
		t.Fatalf("min elevation = %v, want flag value 5", cfg.Engine.MinElevation)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(nil, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"elevation", func(c *Config) { c.Engine.MinElevation = 90 }, ErrInvalidElevation},
		{"negative elevation", func(c *Config) { c.Engine.MinElevation = -1 }, ErrInvalidElevation},
		{"drop rate", func(c *Config) { c.Engine.FixDropRate = 1.5 }, ErrInvalidFixDropRate},
		{"pass age", func(c *Config) { c.Engine.MaxPassAge = -time.Second }, ErrInvalidThreshold},
		{"cache", func(c *Config) { c.Engine.SolverCacheSize = 0 }, ErrInvalidCacheSize},
		{"latitude", func(c *Config) { c.Observer.Latitude = 91 }, ErrInvalidObserver},
		{"speed", func(c *Config) { c.Observer.Speed = -1 }, ErrInvalidSpeed},
		{"listen", func(c *Config) { c.Server.ListenAddr = " " }, ErrInvalidAddress},
		{"refresh", func(c *Config) { c.Server.RefreshRateHz = -60 }, ErrInvalidRefreshRate},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, ErrInvalidSampleRatio},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, ErrInvalidExporter},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Validate() = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestObserverState(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := ObserverSettings{Latitude: 1, Longitude: 2, Bearing: -90, Accuracy: 4}.State(ts)
	if s.Bearing != 270 || !s.Timestamp.Equal(ts) || s.Accuracy != 4 {
		t.Fatalf("State() = %+v", s)
	}
}
