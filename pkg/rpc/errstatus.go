package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/warren/pkg/agent"
)

// toStatus maps pkg/agent's typed errors onto grpc codes. Anything it
// doesn't recognize comes through as Unknown, wrapped with its message
// so the client at least sees what the agent said.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var (
		invalidID    *agent.InvalidContainerIdError
		noSuch       *agent.NoSuchContainerError
		invalidState *agent.InvalidContainerStateError
		invalidCtr   *agent.InvalidContainerError
		gwConfig     *agent.GatewayConfigError
		gwActivation *agent.GatewayActivationError
		gwTeardown   *agent.GatewayTeardownError
		rt           *agent.ContainerRuntimeError
		internal     *agent.InternalError
	)

	switch {
	case errors.As(err, &invalidID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &noSuch):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &invalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &invalidCtr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &gwConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &gwActivation):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &gwTeardown):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &rt):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &internal):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
