package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/internal/logging"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
	"github.com/signalsfoundry/gnss-telemetry-synth/model"
)

// Engine is the synthesis surface served over RPC. *core.Engine satisfies
// it.
type Engine interface {
	RequestVisibleSatellites(ctx context.Context) model.SatelliteStatus
	InterceptStatus(ctx context.Context, genuine []model.GenuineSatellite) (model.SatelliteStatus, bool)
	Observer() model.ObserverState
	SetObserverPosition(s model.ObserverState) error
	ApplyRemote(u kb.RemoteUpdate) (bool, error)
	UpdateVelocity(speedTrans, speedRot float64, now time.Time) (model.ObserverState, bool)
	SetEnabled(on bool)
	Enabled() bool
	ReportedFix(ctx context.Context, sourceTimestamp time.Time) model.ObserverState
	LoadCatalog(ctx context.Context, path string) (int, error)
	Profile() model.DeviceCapabilityProfile
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithVelocityCommand shares the command read by the dead-reckoning driver.
func WithVelocityCommand(c *core.VelocityCommand) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.command = c
		}
	}
}

// WithClock sets the time source used for velocity updates.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server implements TelemetryServiceServer on top of an Engine.
type Server struct {
	engine  Engine
	command *core.VelocityCommand
	log     logging.Logger
	now     func() time.Time
}

var _ TelemetryServiceServer = (*Server)(nil)

// NewServer constructs a Server bound to engine.
func NewServer(engine Engine, log logging.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		engine:  engine,
		command: &core.VelocityCommand{},
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// VelocityCommand returns the command updated by SetVelocityCommand.
func (s *Server) VelocityCommand() *core.VelocityCommand { return s.command }

// GetSatelliteStatus synthesizes a status report for the current observer.
func (s *Server) GetSatelliteStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	status := s.engine.RequestVisibleSatellites(ctx)
	return statusToStruct(status), nil
}

// InterceptStatus feeds a genuine sample to the profile learner and returns
// the synthetic replacement when synthesis is enabled.
func (s *Server) InterceptStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	genuine, err := genuineFromStruct(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	status, synthetic := s.engine.InterceptStatus(ctx, genuine)
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"synthetic": structpb.NewBoolValue(synthetic),
	}}
	if synthetic {
		out.Fields["status"] = structpb.NewStructValue(statusToStruct(status))
	}
	return out, nil
}

// GetObserver returns the current observer state.
func (s *Server) GetObserver(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return observerToStruct(s.engine.Observer()), nil
}

// SetObserver replaces the observer position.
func (s *Server) SetObserver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	reqLog := s.logger(ctx).With(
		logging.String("entity_type", "observer"),
		logging.String("operation", "set"),
	)

	obs, err := observerFromStruct(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = s.now()
	}
	if err := s.engine.SetObserverPosition(obs); err != nil {
		reqLog.Warn(ctx, "observer rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	reqLog.Debug(ctx, "observer set",
		logging.Float("latitude", obs.Latitude),
		logging.Float("longitude", obs.Longitude),
	)
	return observerToStruct(s.engine.Observer()), nil
}

// ApplyObserverUpdate applies a msgpack-encoded position-channel message.
func (s *Server) ApplyObserverUpdate(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	u, err := kb.DecodeUpdate(req.GetValue())
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	applied, err := s.engine.ApplyRemote(u)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return wrapperspb.Bool(applied), nil
}

// UpdateVelocity runs one dead-reckoning step with the given speeds.
func (s *Server) UpdateVelocity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	trans, rot, err := velocityFromStruct(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	obs, written := s.engine.UpdateVelocity(core.ClampCommandSpeed(trans), rot, s.now())
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"written":  structpb.NewBoolValue(written),
		"observer": structpb.NewStructValue(observerToStruct(obs)),
	}}, nil
}

// SetVelocityCommand changes the speeds the periodic driver integrates.
func (s *Server) SetVelocityCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	trans, rot, err := velocityFromStruct(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	s.command.Set(trans, rot)
	trans, rot = s.command.Get()
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"speed":     structpb.NewNumberValue(trans),
		"turn_rate": structpb.NewNumberValue(rot),
	}}, nil
}

// SetEnabled toggles synthesis and returns the new state.
func (s *Server) SetEnabled(ctx context.Context, req *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error) {
	s.engine.SetEnabled(req.GetValue())
	s.logger(ctx).Info(ctx, "synthesis toggled", logging.Bool("enabled", req.GetValue()))
	return wrapperspb.Bool(s.engine.Enabled()), nil
}

// ReportedFix returns the noisy fix reported for a genuine fix stamped with
// the request timestamp.
func (s *Server) ReportedFix(ctx context.Context, req *timestamppb.Timestamp) (*structpb.Struct, error) {
	if req == nil || !req.IsValid() {
		return nil, ToStatusError(fmt.Errorf("%w: invalid source timestamp", ErrInvalidRequest))
	}
	return observerToStruct(s.engine.ReportedFix(ctx, req.AsTime())), nil
}

// LoadCatalog replaces the orbit catalog from a server-side file.
func (s *Server) LoadCatalog(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	path := strings.TrimSpace(req.GetValue())
	if path == "" {
		return nil, ToStatusError(fmt.Errorf("%w: catalog path is required", ErrInvalidRequest))
	}
	n, err := s.engine.LoadCatalog(ctx, path)
	if err != nil {
		s.logger(ctx).Warn(ctx, "catalog load failed",
			logging.String("path", path),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"element_sets": structpb.NewNumberValue(float64(n)),
		"source":       structpb.NewStringValue(path),
	}}, nil
}

// GetProfile returns the learned device capability profile.
func (s *Server) GetProfile(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return profileToStruct(s.engine.Profile()), nil
}

func velocityFromStruct(st *structpb.Struct) (float64, float64, error) {
	trans, err := numberField(st, "speed")
	if err != nil {
		return 0, 0, err
	}
	rot, err := numberField(st, "turn_rate")
	if err != nil {
		return 0, 0, err
	}
	return trans, rot, nil
}

// logger prefers the per-request logger installed by the interceptors.
func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}
