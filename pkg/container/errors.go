package container

import (
	"errors"
	"fmt"

	"github.com/cuemby/warren/pkg/types"
)

// ErrInvalid is returned by any operation attempted against a
// container already in the INVALID trap state.
var ErrInvalid = errors.New("container: container is in the INVALID trap state")

// StateError reports that an operation is not valid for the
// container's current lifecycle state (e.g. suspend on a non-READY
// container).
type StateError struct {
	Op    string
	State types.ContainerState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("container: %s invalid in state %s", e.Op, e.State)
}

// RuntimeError wraps a failure returned by the underlying Runtime
// collaborator, tagged with the operation that failed.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("container: %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func newRuntimeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, Err: err}
}

func newStateError(op string, state types.ContainerState) error {
	return &StateError{Op: op, State: state}
}
