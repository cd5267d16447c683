package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// waylandConfig is the sole element of the wayland gateway's config
// array (spec §4.3.6): {"enabled": true}.
type waylandConfig struct {
	Enabled bool `json:"enabled"`
}

// WaylandGateway bind-mounts the host Wayland compositor socket into
// the container and points XDG_RUNTIME_DIR at it. Dynamic: later
// setConfig calls may flip enabled on, but once mounted the mount is
// never retracted by a later "enabled": false (monotonic, like the
// device gateway's permission union).
type WaylandGateway struct {
	*Base

	mu       sync.Mutex
	enabled  bool
	attached bool
}

// NewWaylandGateway constructs the wayland gateway in the CREATED
// state.
func NewWaylandGateway() *WaylandGateway {
	g := &WaylandGateway{}
	g.Base = NewBase("wayland", true, g.readElement, g.activate, g.teardown)
	return g
}

func (g *WaylandGateway) readElement(raw json.RawMessage) error {
	var e waylandConfig
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	g.mu.Lock()
	if e.Enabled {
		g.enabled = true
	}
	g.mu.Unlock()
	return nil
}

func (g *WaylandGateway) activate(_ context.Context, c *container.Container) error {
	g.mu.Lock()
	enabled, attached := g.enabled, g.attached
	g.mu.Unlock()

	if !enabled || attached {
		return nil
	}

	runtimeDir := hostXDGRuntimeDir()
	hostSocket := filepath.Join(runtimeDir, "wayland-0")
	containerSocket := "/gateways/wayland-0"

	if err := c.BindMount(hostSocket, containerSocket, true); err != nil {
		return fmt.Errorf("wayland gateway: %w", err)
	}
	c.SetEnvironmentVariable("XDG_RUNTIME_DIR", "/gateways")

	g.mu.Lock()
	g.attached = true
	g.mu.Unlock()
	return nil
}

func (g *WaylandGateway) teardown() error {
	// The bind mount is tracked on the container's own undo stack and
	// unwound there; nothing left to reverse here.
	return nil
}
