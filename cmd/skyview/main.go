package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
	"github.com/signalsfoundry/gnss-telemetry-synth/timectrl"
)

type options struct {
	CatalogPath string
	Latitude    float64
	Longitude   float64
	Altitude    float64
	Bearing     float64
	Start       time.Time
	Duration    time.Duration
	Tick        time.Duration
	Speed       float64
	TurnRate    float64
	Noise       bool
	Seed        int64
	Verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.CatalogPath, "catalog", "", "Orbital element file (.txt, .gz or .zst)")
	flag.Float64Var(&opts.Latitude, "lat", 0, "Observer latitude in degrees")
	flag.Float64Var(&opts.Longitude, "lon", 0, "Observer longitude in degrees")
	flag.Float64Var(&opts.Altitude, "alt", 0, "Observer altitude in metres")
	flag.Float64Var(&opts.Bearing, "bearing", 0, "Initial heading in degrees clockwise from north")
	at := flag.String("at", "", "Start time (RFC 3339); defaults to now")
	flag.DurationVar(&opts.Duration, "duration", 0, "Replay length; 0 prints a single report")
	flag.DurationVar(&opts.Tick, "tick", time.Second, "Replay step")
	flag.Float64Var(&opts.Speed, "speed", 0, "Walking speed in m/s during the replay")
	flag.Float64Var(&opts.TurnRate, "turn-rate", 0, "Turn rate in deg/s during the replay")
	flag.BoolVar(&opts.Noise, "noise", false, "Inject measurement noise")
	flag.Int64Var(&opts.Seed, "seed", 1, "Noise seed")
	flag.BoolVar(&opts.Verbose, "v", false, "Log engine activity to stderr")
	flag.Parse()

	opts.Start = time.Now().UTC()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -at: %v\n", err)
			os.Exit(2)
		}
		opts.Start = t
	}

	if err := run(context.Background(), os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "skyview: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, opts options) error {
	if opts.CatalogPath == "" {
		return errors.New("-catalog is required")
	}
	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Output: os.Stderr})

	observer := model.ObserverState{
		Latitude:  opts.Latitude,
		Longitude: opts.Longitude,
		Altitude:  opts.Altitude,
		Bearing:   model.NormalizeBearing(opts.Bearing),
		Accuracy:  5,
		Timestamp: opts.Start,
	}
	if err := kb.ValidateObserver(observer); err != nil {
		return err
	}

	driver := timectrl.NewDriver(opts.Start, opts.Tick, timectrl.Accelerated)

	cfg := core.DefaultEngineConfig()
	cfg.NoiseEnabled = opts.Noise
	cfg.Seed = opts.Seed
	// replays step faster than wall time, so every tick recomputes
	cfg.MaxPassAge = opts.Tick / 2
	engine, err := core.NewEngine(cfg, kb.NewKnowledgeBase(observer),
		core.WithLogger(log),
		core.WithClock(driver.Now),
	)
	if err != nil {
		return err
	}
	n, err := engine.LoadCatalog(ctx, opts.CatalogPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Loaded %d element sets from %s\n", n, opts.CatalogPath)

	// no genuine sensor here; teach the profile a fully capable receiver
	engine.InterceptStatus(ctx, []model.GenuineSatellite{{PRN: 1, HasAlmanac: true, HasEphemeris: true, UsedInFix: true}})

	if opts.Duration <= 0 {
		printReport(w, opts.Start, engine.Observer(), engine.RequestVisibleSatellites(ctx))
		return nil
	}

	speed := core.ClampCommandSpeed(opts.Speed)
	engine.UpdateVelocity(speed, opts.TurnRate, opts.Start)
	driver.AddListener(func(now time.Time) {
		obs, _ := engine.UpdateVelocity(speed, opts.TurnRate, now)
		printReport(w, now, obs, engine.RequestVisibleSatellites(ctx))
	})

	fmt.Fprintf(w, "Replaying %s in %s steps\n", opts.Duration, opts.Tick)
	if err := driver.Run(ctx, opts.Duration); err != nil {
		return err
	}
	fmt.Fprintln(w, "Replay complete.")
	return nil
}

func printReport(w io.Writer, at time.Time, obs model.ObserverState, status model.SatelliteStatus) {
	fmt.Fprintf(w, "[%s] observer (%.6f, %.6f) heading %.0f°: %d satellites, fix mask %#08x\n",
		at.Format(time.RFC3339), obs.Latitude, obs.Longitude, obs.Bearing, status.Count, status.UsedInFixMask)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PRN\tEL\tAZ\tSNR\tEPH\tALM\tFIX")
	for _, rec := range status.Satellites {
		fmt.Fprintf(tw, "  %d\t%.0f\t%.0f\t%.1f\t%s\t%s\t%s\n",
			rec.PRN, rec.Elevation, rec.Azimuth, rec.SNR,
			mark(rec.HasEphemeris), mark(rec.HasAlmanac), mark(rec.UsedInFix))
	}
	tw.Flush()
}

func mark(b bool) string {
	if b {
		return "y"
	}
	return "-"
}
