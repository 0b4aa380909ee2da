package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// SynthCollector bundles Prometheus metrics for the synthesis engine and its
// RPC surface. It satisfies core.MetricsRecorder; every method is safe on a
// nil receiver.
type SynthCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	CatalogElementSets  prometheus.Gauge
	CatalogParseErrors  prometheus.Counter
	PropagationDuration prometheus.Histogram
	PropagationFailures prometheus.Counter
	SchedulerRequests   *prometheus.CounterVec
	SchedulerHitRatio   prometheus.Gauge
	VisibleSatellites   prometheus.Gauge
	FixDrops            prometheus.Counter
	ProfileFlags        *prometheus.GaugeVec
	DeadReckoning       *prometheus.CounterVec

	ratioMu      sync.Mutex
	hits, misses float64
}

// NewSynthCollector registers synthesis metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSynthCollector(reg prometheus.Registerer) (*SynthCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SynthCollector{gatherer: gatherer}
	var err error

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_rpc_requests_total",
		Help: "Total number of handled telemetry RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "synth_rpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_rpc_request_duration_seconds",
		Help:    "Telemetry RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "synth_rpc_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.CatalogElementSets, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "synth_catalog_element_sets",
		Help: "Number of orbital element sets in the current catalog.",
	}), "synth_catalog_element_sets"); err != nil {
		return nil, err
	}
	if c.CatalogParseErrors, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "synth_catalog_parse_errors_total",
		Help: "Element-set groups skipped because they failed to parse.",
	}), "synth_catalog_parse_errors_total"); err != nil {
		return nil, err
	}
	if c.VisibleSatellites, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "synth_visible_satellites",
		Help: "Satellites above the elevation mask in the last report.",
	}), "synth_visible_satellites"); err != nil {
		return nil, err
	}
	if c.FixDrops, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "synth_fix_drops_total",
		Help: "Satellites randomly reported as not used in the fix.",
	}), "synth_fix_drops_total"); err != nil {
		return nil, err
	}
	if c.ProfileFlags, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synth_device_profile_flag",
		Help: "Learned device capability flags (1 = capability never seen).",
	}, []string{"flag"}), "synth_device_profile_flag"); err != nil {
		return nil, err
	}
	if c.DeadReckoning, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_dead_reckoning_updates_total",
		Help: "Velocity updates, labeled by whether they were written or throttled.",
	}, []string{"result"}), "synth_dead_reckoning_updates_total"); err != nil {
		return nil, err
	}
	if err := c.registerSchedulerMetrics(reg); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SynthCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SynthCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SynthCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetCatalogSize sets the catalog size gauge.
func (c *SynthCollector) SetCatalogSize(n int) {
	if c == nil || c.CatalogElementSets == nil {
		return
	}
	c.CatalogElementSets.Set(float64(n))
}

// AddCatalogParseErrors counts skipped element-set groups.
func (c *SynthCollector) AddCatalogParseErrors(n int) {
	if c == nil || c.CatalogParseErrors == nil || n <= 0 {
		return
	}
	c.CatalogParseErrors.Add(float64(n))
}

// SetVisibleSatellites records how many satellites cleared the mask.
func (c *SynthCollector) SetVisibleSatellites(n int) {
	if c == nil || c.VisibleSatellites == nil {
		return
	}
	c.VisibleSatellites.Set(float64(n))
}

// IncFixDrops counts a satellite dropped from the fix.
func (c *SynthCollector) IncFixDrops() {
	if c == nil || c.FixDrops == nil {
		return
	}
	c.FixDrops.Inc()
}

// SetProfile exports the learned device profile.
func (c *SynthCollector) SetProfile(p model.DeviceCapabilityProfile) {
	if c == nil || c.ProfileFlags == nil {
		return
	}
	c.ProfileFlags.WithLabelValues("ephemeris_always_false").Set(boolGauge(p.EphemerisAlwaysFalse))
	c.ProfileFlags.WithLabelValues("almanac_always_false").Set(boolGauge(p.AlmanacAlwaysFalse))
	c.ProfileFlags.WithLabelValues("fix_always_false").Set(boolGauge(p.FixAlwaysFalse))
	c.ProfileFlags.WithLabelValues("single_constellation_only").Set(boolGauge(p.SingleConstellationOnly))
}

// IncDeadReckoning counts a velocity update.
func (c *SynthCollector) IncDeadReckoning(throttled bool) {
	if c == nil || c.DeadReckoning == nil {
		return
	}
	result := "written"
	if throttled {
		result = "throttled"
	}
	c.DeadReckoning.WithLabelValues(result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
