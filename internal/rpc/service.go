// Package rpc serves the synthesis engine over gRPC. Messages are the
// protobuf well-known types, so the service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "gnss.telemetry.v1.TelemetryService"

// TelemetryServiceServer is the server API for TelemetryService.
type TelemetryServiceServer interface {
	GetSatelliteStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	InterceptStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetObserver(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetObserver(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyObserverUpdate(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
	UpdateVelocity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetVelocityCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetEnabled(context.Context, *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error)
	ReportedFix(context.Context, *timestamppb.Timestamp) (*structpb.Struct, error)
	LoadCatalog(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetProfile(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TelemetryServiceDesc describes TelemetryService for grpc.Server.
var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSatelliteStatus", TelemetryServiceServer.GetSatelliteStatus),
		unary("InterceptStatus", TelemetryServiceServer.InterceptStatus),
		unary("GetObserver", TelemetryServiceServer.GetObserver),
		unary("SetObserver", TelemetryServiceServer.SetObserver),
		unary("ApplyObserverUpdate", TelemetryServiceServer.ApplyObserverUpdate),
		unary("UpdateVelocity", TelemetryServiceServer.UpdateVelocity),
		unary("SetVelocityCommand", TelemetryServiceServer.SetVelocityCommand),
		unary("SetEnabled", TelemetryServiceServer.SetEnabled),
		unary("ReportedFix", TelemetryServiceServer.ReportedFix),
		unary("LoadCatalog", TelemetryServiceServer.LoadCatalog),
		unary("GetProfile", TelemetryServiceServer.GetProfile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gnss/telemetry/v1/telemetry.proto",
}

// RegisterTelemetryServiceServer registers srv on s.
func RegisterTelemetryServiceServer(s grpc.ServiceRegistrar, srv TelemetryServiceServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor protoc-gen-go-grpc would generate for
// a unary method.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(TelemetryServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TelemetryServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TelemetryServiceServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
