package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a thin TelemetryService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetSatelliteStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetSatelliteStatus"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InterceptStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("InterceptStatus"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetObserver(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetObserver"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetObserver(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("SetObserver"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApplyObserverUpdate(ctx context.Context, msg []byte, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, fullMethod("ApplyObserverUpdate"), wrapperspb.Bytes(msg), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) UpdateVelocity(ctx context.Context, speed, turnRate float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("UpdateVelocity"), velocityStruct(speed, turnRate), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetVelocityCommand(ctx context.Context, speed, turnRate float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("SetVelocityCommand"), velocityStruct(speed, turnRate), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetEnabled(ctx context.Context, on bool, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, fullMethod("SetEnabled"), wrapperspb.Bool(on), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) ReportedFix(ctx context.Context, source *timestamppb.Timestamp, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ReportedFix"), source, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LoadCatalog(ctx context.Context, path string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("LoadCatalog"), wrapperspb.String(path), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProfile(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetProfile"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func velocityStruct(speed, turnRate float64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"speed":     structpb.NewNumberValue(speed),
		"turn_rate": structpb.NewNumberValue(turnRate),
	}}
}
