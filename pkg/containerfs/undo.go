package containerfs

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/log"
)

// Action is one reversible resource acquisition: a created directory, an
// active bind mount, a temporary file, an open pipe. Undo must be
// idempotent-safe to call even if the underlying resource is already
// gone.
type Action interface {
	Undo() error
	Describe() string
}

// Stack is the per-container undo stack (spec §3, §5). Zero value is
// usable.
type Stack struct {
	mu      sync.Mutex
	actions []Action
	log     zerolog.Logger
}

// NewStack creates an undo stack for the given container id, used only
// to tag its log lines.
func NewStack(containerID int32) *Stack {
	return &Stack{log: log.WithContainerID(containerID)}
}

// Push records a successfully-acquired resource for later release.
func (s *Stack) Push(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
}

// Len reports how many actions are currently pushed.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Unwind releases every pushed action in reverse (LIFO) order. A
// failing Undo is logged and unwinding continues with the next action;
// it never aborts partway through (spec §5 "best-effort... release
// continues").
func (s *Stack) Unwind() {
	s.mu.Lock()
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if err := a.Undo(); err != nil {
			s.log.Warn().Err(err).Str("action", a.Describe()).Msg("cleanup action failed, continuing unwind")
		}
	}
}

// funcAction adapts a plain func() error into an Action with a fixed
// description, used by callers that do not need a dedicated type.
type funcAction struct {
	desc string
	undo func() error
}

func (f funcAction) Undo() error      { return f.undo() }
func (f funcAction) Describe() string { return f.desc }

// Func builds an Action from a description and an undo function.
func Func(desc string, undo func() error) Action {
	return funcAction{desc: desc, undo: undo}
}
