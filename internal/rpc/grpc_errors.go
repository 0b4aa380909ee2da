package rpc

import (
	"context"
	"errors"
	"io/fs"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnss-telemetry-synth/core"
	"github.com/signalsfoundry/gnss-telemetry-synth/kb"
)

// ErrInvalidRequest is returned for malformed request messages.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var parseErr *core.CatalogParseError
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, kb.ErrInvalidObserver),
		errors.Is(err, core.ErrDegenerateOrbit),
		errors.As(err, &parseErr):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, fs.ErrNotExist):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, fs.ErrPermission):
		return status.Error(codes.PermissionDenied, err.Error())

	case errors.Is(err, core.ErrPropagationFailure):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
