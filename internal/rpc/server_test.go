package rpc

import (
	"context"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

var _ Engine = (*core.Engine)(nil)

var testEpoch = time.Date(2016, time.August, 19, 12, 0, 0, 0, time.UTC)

// prnSolver puts each satellite at 2.5° of elevation per PRN number.
var prnSolver = core.LookAngleSolverFunc(func(set model.OrbitalElementSet, _ time.Time, _ model.ObserverState) (core.LookAngles, error) {
	return core.LookAngles{
		Azimuth:   float64(set.PRN) * 10 * math.Pi / 180,
		Elevation: float64(set.PRN) * 2.5 * math.Pi / 180,
		RangeKm:   20200,
	}, nil
})

type harness struct {
	engine *core.Engine
	server *Server
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := core.DefaultEngineConfig()
	cfg.NoiseEnabled = false
	cfg.Seed = 7
	store := kb.NewKnowledgeBase(model.ObserverState{Latitude: 37.4, Longitude: -122.1, Accuracy: 5, Timestamp: testEpoch})
	engine, err := core.NewEngine(cfg, store,
		core.WithSolver(prnSolver),
		core.WithClock(func() time.Time { return testEpoch }),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	now := testEpoch
	srv := NewServer(engine, logging.Noop(), WithClock(func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}))

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(ServerOptions(logging.Noop())...)
	RegisterTelemetryServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{engine: engine, server: srv, client: NewClient(conn)}
}

func testCatalogPath() string {
	return filepath.Join("..", "..", "core", "testdata", "gps-ops.txt")
}

func listNumbers(t *testing.T, st *structpb.Struct, key string) []float64 {
	t.Helper()
	v, ok := st.GetFields()[key]
	if !ok {
		t.Fatalf("response missing %q: %v", key, st)
	}
	var out []float64
	for _, item := range v.GetListValue().GetValues() {
		out = append(out, item.GetNumberValue())
	}
	return out
}

func TestLoadCatalogAndGetStatus(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	empty, err := h.client.GetSatelliteStatus(ctx)
	if err != nil {
		t.Fatalf("GetSatelliteStatus: %v", err)
	}
	if n := empty.GetFields()["count"].GetNumberValue(); n != 0 {
		t.Fatalf("count before catalog load = %v", n)
	}

	loaded, err := h.client.LoadCatalog(ctx, testCatalogPath())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if n := loaded.GetFields()["element_sets"].GetNumberValue(); n != 24 {
		t.Fatalf("element_sets = %v, want 24", n)
	}

	resp, err := h.client.GetSatelliteStatus(ctx)
	if err != nil {
		t.Fatalf("GetSatelliteStatus: %v", err)
	}
	// PRN 1 (2.5°) and 2 (5°) sit below the 10° mask
	if n := resp.GetFields()["count"].GetNumberValue(); n != 22 {
		t.Fatalf("count = %v, want 22", n)
	}
	prns := listNumbers(t, resp, "prns")
	elevations := listNumbers(t, resp, "elevations")
	snrs := listNumbers(t, resp, "snrs")
	if len(prns) != 22 || len(elevations) != 22 || len(snrs) != 22 {
		t.Fatalf("parallel arrays have lengths %d/%d/%d", len(prns), len(elevations), len(snrs))
	}
	for i, prn := range prns {
		if prn == 1 || prn == 2 {
			t.Fatalf("PRN %v below the mask was reported", prn)
		}
		if math.Abs(elevations[i]-prn*2.5) > 0.5+1e-9 {
			t.Fatalf("PRN %v elevation = %v", prn, elevations[i])
		}
	}

	// nothing learned yet, so the device is assumed to report no ephemeris
	if got := resp.GetFields()["ephemeris_mask"].GetNumberValue(); got != 0 {
		t.Fatalf("ephemeris_mask = %v, want 0 before any genuine sample", got)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.LoadCatalog(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("LoadCatalog(missing) code = %v, want NotFound", status.Code(err))
	}
	_, err = h.client.LoadCatalog(context.Background(), "  ")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("LoadCatalog(blank) code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestSetObserverRejectsUnsetPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.SetObserver(ctx, observerToStruct(model.ObserverState{Latitude: 0, Longitude: 0}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetObserver(0,0) code = %v, want InvalidArgument", status.Code(err))
	}
	if got := h.engine.Observer(); got.Latitude != 37.4 {
		t.Fatalf("observer replaced by rejected update: %+v", got)
	}

	resp, err := h.client.SetObserver(ctx, observerToStruct(model.ObserverState{Latitude: 48.85, Longitude: 2.35, Bearing: 370}))
	if err != nil {
		t.Fatalf("SetObserver: %v", err)
	}
	if lat := resp.GetFields()["latitude"].GetNumberValue(); lat != 48.85 {
		t.Fatalf("latitude = %v", lat)
	}
	if b := resp.GetFields()["bearing"].GetNumberValue(); b != 10 {
		t.Fatalf("bearing = %v, want 10", b)
	}
	if _, ok := resp.GetFields()["timestamp"]; !ok {
		t.Fatalf("server did not stamp the observer")
	}
}

func TestSetObserverRejectsMalformedFields(t *testing.T) {
	h := newHarness(t)
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"latitude":  structpb.NewStringValue("north"),
		"longitude": structpb.NewNumberValue(2),
	}}
	if _, err := h.client.SetObserver(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestApplyObserverUpdateDedupes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	msg, err := kb.EncodeUpdate(kb.RemoteUpdate{
		Observer: model.ObserverState{Latitude: 51.5, Longitude: -0.12, Timestamp: testEpoch.Add(time.Minute)},
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	applied, err := h.client.ApplyObserverUpdate(ctx, msg)
	if err != nil || !applied {
		t.Fatalf("first update applied=%v err=%v", applied, err)
	}
	if !h.engine.Enabled() || h.engine.Observer().Latitude != 51.5 {
		t.Fatalf("update not applied: enabled=%v observer=%+v", h.engine.Enabled(), h.engine.Observer())
	}

	applied, err = h.client.ApplyObserverUpdate(ctx, msg)
	if err != nil || applied {
		t.Fatalf("duplicate update applied=%v err=%v", applied, err)
	}

	if _, err := h.client.ApplyObserverUpdate(ctx, []byte{0xc1}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("garbage update code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestInterceptStatusHonoursEnableFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.client.LoadCatalog(ctx, testCatalogPath()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	genuine := &structpb.Struct{Fields: map[string]*structpb.Value{
		"satellites": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"prn": structpb.NewNumberValue(65),
			}}),
			structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				"prn":           structpb.NewNumberValue(3),
				"has_ephemeris": structpb.NewBoolValue(true),
			}}),
		}}),
	}}

	resp, err := h.client.InterceptStatus(ctx, genuine)
	if err != nil {
		t.Fatalf("InterceptStatus: %v", err)
	}
	if resp.GetFields()["synthetic"].GetBoolValue() {
		t.Fatalf("disabled engine returned a synthetic report")
	}
	profile, err := h.client.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.GetFields()["ephemeris_always_false"].GetBoolValue() {
		t.Fatalf("ephemeris capability not learned")
	}
	if profile.GetFields()["single_constellation_only"].GetBoolValue() {
		t.Fatalf("PRN 65 should clear single_constellation_only")
	}

	if on, err := h.client.SetEnabled(ctx, true); err != nil || !on {
		t.Fatalf("SetEnabled = %v, %v", on, err)
	}
	resp, err = h.client.InterceptStatus(ctx, &structpb.Struct{})
	if err != nil {
		t.Fatalf("InterceptStatus: %v", err)
	}
	if !resp.GetFields()["synthetic"].GetBoolValue() {
		t.Fatalf("enabled engine did not synthesize")
	}
	report := resp.GetFields()["status"].GetStructValue()
	if n := report.GetFields()["count"].GetNumberValue(); n != 22 {
		t.Fatalf("synthetic count = %v, want 22", n)
	}
	want := 0.0
	for _, prn := range listNumbers(t, report, "prns") {
		want += float64(model.PRNBit(int(prn)))
	}
	if got := report.GetFields()["ephemeris_mask"].GetNumberValue(); got != want {
		t.Fatalf("ephemeris_mask = %v, want %v", got, want)
	}
	if got := report.GetFields()["almanac_mask"].GetNumberValue(); got != 0 {
		t.Fatalf("almanac_mask = %v, want 0 while almanac is never reported", got)
	}
}

func TestVelocityRPCs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cmd, err := h.client.SetVelocityCommand(ctx, 10, 5)
	if err != nil {
		t.Fatalf("SetVelocityCommand: %v", err)
	}
	if s := cmd.GetFields()["speed"].GetNumberValue(); s != core.MaxCommandSpeed {
		t.Fatalf("commanded speed = %v, want clamp to %v", s, core.MaxCommandSpeed)
	}
	if trans, rot := h.server.VelocityCommand().Get(); trans != core.MaxCommandSpeed || rot != 5 {
		t.Fatalf("shared command = %v, %v", trans, rot)
	}

	// first step anchors the integrator, the second moves 100 ms later
	if _, err := h.client.UpdateVelocity(ctx, 2, 0); err != nil {
		t.Fatalf("UpdateVelocity: %v", err)
	}
	resp, err := h.client.UpdateVelocity(ctx, 2, 0)
	if err != nil {
		t.Fatalf("UpdateVelocity: %v", err)
	}
	if !resp.GetFields()["written"].GetBoolValue() {
		t.Fatalf("second update was throttled")
	}
	lat := resp.GetFields()["observer"].GetStructValue().GetFields()["latitude"].GetNumberValue()
	if lat <= 37.4 {
		t.Fatalf("observer did not move north: %v", lat)
	}
}

func TestReportedFixIsStable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := timestamppb.New(testEpoch.Add(3 * time.Second))

	first, err := h.client.ReportedFix(ctx, src)
	if err != nil {
		t.Fatalf("ReportedFix: %v", err)
	}
	again, err := h.client.ReportedFix(ctx, src)
	if err != nil {
		t.Fatalf("ReportedFix: %v", err)
	}
	if first.GetFields()["latitude"].GetNumberValue() != again.GetFields()["latitude"].GetNumberValue() {
		t.Fatalf("same source timestamp produced different fixes")
	}
	if ts := first.GetFields()["timestamp"].GetStringValue(); ts != src.AsTime().Format(time.RFC3339Nano) {
		t.Fatalf("fix timestamp = %q", ts)
	}

	bad := &timestamppb.Timestamp{Seconds: 1, Nanos: -5}
	if _, err := h.client.ReportedFix(ctx, bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("invalid timestamp code = %v", status.Code(err))
	}
}

func TestRequestIDInterceptorUsesInboundMetadata(t *testing.T) {
	ic := RequestIDUnaryServerInterceptor(logging.Noop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-42"))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetObserver")}

	_, err := ic(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		if id := logging.RequestIDFromContext(ctx); id != "req-42" {
			t.Fatalf("request id = %q, want req-42", id)
		}
		if logging.LoggerFromContext(ctx) == nil {
			t.Fatalf("no request logger on context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}
