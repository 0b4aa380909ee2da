package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/config"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/observability"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/rpc"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
	"github.com/signalsfoundry/gnss-telemetry-synth/timectrl"
)

// flagKeys maps command-line flags onto config keys. Only flags given on
// the command line override the file and environment.
var flagKeys = map[string]string{
	"grpc-addr":    "server.listen",
	"metrics-addr": "server.metrics_addr",
	"catalog":      "catalog.path",
	"noise":        "engine.noise_enabled",
	"enabled":      "enabled",
	"lat":          "observer.latitude",
	"lon":          "observer.longitude",
	"speed":        "observer.speed",
	"turn-rate":    "observer.turn_rate",
	"tracing":      "tracing.enabled",
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML, JSON or TOML config file")
	flag.String("grpc-addr", ":50061", "TCP address the telemetry gRPC server listens on")
	flag.String("metrics-addr", ":9464", "HTTP address for Prometheus /metrics (empty disables)")
	flag.String("catalog", "", "Orbital element file to load at startup (.txt, .gz or .zst)")
	flag.Bool("noise", true, "Inject measurement noise")
	flag.Bool("enabled", true, "Replace genuine telemetry with synthetic telemetry")
	flag.Float64("lat", 0, "Initial observer latitude in degrees")
	flag.Float64("lon", 0, "Initial observer longitude in degrees")
	flag.Float64("speed", 0, "Commanded walking speed in m/s")
	flag.Float64("turn-rate", 0, "Commanded turn rate in deg/s, counter-clockwise positive")
	flag.Bool("tracing", false, "Export OpenTelemetry spans (see tracing.* config keys)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	v := config.NewViper()
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})
	cfg, err := config.Load(v, *configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid config", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.ListenAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "synthd exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the telemetry engine on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewSynthCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	store := kb.NewKnowledgeBase(cfg.Observer.State(time.Now()))
	engine, err := core.NewEngine(cfg.Engine, store,
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	engine.SetEnabled(cfg.Enabled)

	if cfg.CatalogPath != "" {
		n, err := engine.LoadCatalog(ctx, cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		log.Info(ctx, "catalog loaded", logging.String("path", cfg.CatalogPath), logging.Int("element_sets", n))
	} else {
		log.Warn(ctx, "no catalog configured; reports stay empty until LoadCatalog is called")
	}

	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventObserverMoved {
			return
		}
		log.Debug(ctx, "observer store changed",
			logging.String("event", ev.Type.String()),
			logging.Bool("enabled", ev.Enabled),
		)
	})
	defer unsubscribe()

	command := &core.VelocityCommand{}
	command.Set(cfg.Observer.Speed, cfg.Observer.TurnRate)

	cadence := timectrl.CadenceForRefreshRate(cfg.Server.RefreshRateHz)
	driver := timectrl.NewDriver(time.Now(), cadence, timectrl.RealTime)
	driver.AddListener(func(now time.Time) {
		trans, rot := command.Get()
		engine.UpdateVelocity(trans, rot, now)
	})

	server := grpc.NewServer(rpc.ServerOptions(log, collector.UnaryServerInterceptor())...)
	rpc.RegisterTelemetryServiceServer(server, rpc.NewServer(engine, log, rpc.WithVelocityCommand(command)))

	metricsSrv := newMetricsServer(cfg.Server.MetricsAddr, collector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting telemetry gRPC server", logging.String("addr", lis.Addr().String()))
		return server.Serve(lis)
	})
	g.Go(func() error {
		log.Info(gctx, "starting dead-reckoning driver", logging.Duration("cadence", cadence))
		if err := driver.Run(gctx, 0); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down synthd")
		server.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

func newMetricsServer(addr string, collector *observability.SynthCollector) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
