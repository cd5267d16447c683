package agent

import (
	"errors"
	"fmt"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/gateway"
	"github.com/cuemby/warren/pkg/types"
)

// InvalidContainerIdError reports an id outside the valid range
// (negative, or >= 2^31) rejected before any registry lookup.
type InvalidContainerIdError struct {
	ID types.ContainerID
}

func (e *InvalidContainerIdError) Error() string {
	return fmt.Sprintf("agent: invalid container id %d", e.ID)
}

// NoSuchContainerError reports a well-formed id with no entry in the
// registry.
type NoSuchContainerError struct {
	ID types.ContainerID
}

func (e *NoSuchContainerError) Error() string {
	return fmt.Sprintf("agent: no such container %d", e.ID)
}

// InvalidContainerStateError reports an operation rejected because
// the container is not in the lifecycle state it requires.
type InvalidContainerStateError struct {
	ID  types.ContainerID
	Err error
}

func (e *InvalidContainerStateError) Error() string {
	return fmt.Sprintf("agent: container %d: %v", e.ID, e.Err)
}

func (e *InvalidContainerStateError) Unwrap() error { return e.Err }

// InvalidContainerError reports that the container has fallen into
// the INVALID trap state and cannot be operated on except Destroy.
type InvalidContainerError struct {
	ID types.ContainerID
}

func (e *InvalidContainerError) Error() string {
	return fmt.Sprintf("agent: container %d is invalid", e.ID)
}

// GatewayConfigError reports a rejected gateway setConfig call during
// SetCapabilities or default-capability application.
type GatewayConfigError struct {
	ID  types.ContainerID
	Err error
}

func (e *GatewayConfigError) Error() string {
	return fmt.Sprintf("agent: container %d: gateway config: %v", e.ID, e.Err)
}

func (e *GatewayConfigError) Unwrap() error { return e.Err }

// GatewayActivationError reports a failed gateway activate() call.
// Per the propagation policy this fails the enclosing call but does
// not roll back gateways that already activated successfully.
type GatewayActivationError struct {
	ID  types.ContainerID
	Err error
}

func (e *GatewayActivationError) Error() string {
	return fmt.Sprintf("agent: container %d: gateway activation: %v", e.ID, e.Err)
}

func (e *GatewayActivationError) Unwrap() error { return e.Err }

// GatewayTeardownError reports a gateway that failed to tear down
// cleanly during destroy; surfaced for logging, never blocks destroy.
type GatewayTeardownError struct {
	ID  types.ContainerID
	Err error
}

func (e *GatewayTeardownError) Error() string {
	return fmt.Sprintf("agent: container %d: gateway teardown: %v", e.ID, e.Err)
}

func (e *GatewayTeardownError) Unwrap() error { return e.Err }

// ContainerRuntimeError reports a failure from the underlying runtime
// driver (containerd, nsenter, mount) during an otherwise
// state-valid operation. Suspend/Resume/Destroy already drive the
// container to INVALID themselves; this error just carries the cause
// up to the RPC layer.
type ContainerRuntimeError struct {
	ID  types.ContainerID
	Err error
}

func (e *ContainerRuntimeError) Error() string {
	return fmt.Sprintf("agent: container %d: runtime error: %v", e.ID, e.Err)
}

func (e *ContainerRuntimeError) Unwrap() error { return e.Err }

// InternalError reports a condition the agent has no typed
// classification for; callers should treat it as opaque.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("agent: internal error in %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// translateContainerErr classifies an error returned by pkg/container
// into the agent's RPC-facing taxonomy (spec §7).
func translateContainerErr(id types.ContainerID, op string, err error) error {
	if err == nil {
		return nil
	}
	var stateErr *container.StateError
	if errors.As(err, &stateErr) {
		return &InvalidContainerStateError{ID: id, Err: err}
	}
	if errors.Is(err, container.ErrInvalid) {
		return &InvalidContainerError{ID: id}
	}
	var runtimeErr *container.RuntimeError
	if errors.As(err, &runtimeErr) {
		return &ContainerRuntimeError{ID: id, Err: err}
	}
	return &InternalError{Op: op, Err: err}
}

// translateGatewayErr classifies an error returned by pkg/gateway.
func translateGatewayErr(id types.ContainerID, op string, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *gateway.ConfigError
	if errors.As(err, &cfgErr) {
		return &GatewayConfigError{ID: id, Err: err}
	}
	var actErr *gateway.ActivationError
	if errors.As(err, &actErr) {
		return &GatewayActivationError{ID: id, Err: err}
	}
	var notAttached *gateway.NotAttachedError
	if errors.As(err, &notAttached) {
		return &GatewayActivationError{ID: id, Err: err}
	}
	var tdErr *gateway.TeardownError
	if errors.As(err, &tdErr) {
		return &GatewayTeardownError{ID: id, Err: err}
	}
	return &InternalError{Op: op, Err: err}
}
