package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// envEntry is one element of the environment gateway's config array
// (spec §4.3.8): {"name": "...", "value": "...", "append": true}.
type envEntry struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Append bool   `json:"append"`
}

// EnvGateway contributes variables to a container's default
// environment. It is not dynamic: once activated its variables are
// fixed for the container's lifetime.
type EnvGateway struct {
	*Base

	mu   sync.Mutex
	vars map[string]string
}

// NewEnvGateway constructs the environment gateway in the CREATED
// state.
func NewEnvGateway() *EnvGateway {
	g := &EnvGateway{vars: make(map[string]string)}
	g.Base = NewBase("env", false, g.readElement, g.activate, g.teardown)
	return g
}

func (g *EnvGateway) readElement(raw json.RawMessage) error {
	var e envEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	if e.Name == "" {
		return fmt.Errorf("env gateway: name is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, exists := g.vars[e.Name]
	switch {
	case exists && !e.Append:
		return fmt.Errorf("env gateway: %q redefined without append", e.Name)
	case exists && e.Append:
		g.vars[e.Name] = existing + e.Value
	default:
		g.vars[e.Name] = e.Value
	}
	return nil
}

func (g *EnvGateway) activate(_ context.Context, c *container.Container) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.vars {
		c.SetEnvironmentVariable(k, v)
	}
	return nil
}

func (g *EnvGateway) teardown() error {
	// Variables already handed to the container's default environment
	// are not retracted; the container is being destroyed regardless.
	return nil
}
