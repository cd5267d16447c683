package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// deviceEntry is one element of the device-node gateway's config
// array (spec §4.3.3): {"name": "/dev/ttyUSB0", "mode": "0660"}.
type deviceEntry struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
}

// DeviceGateway mirrors host device nodes into a container. It is
// dynamic: setConfig/activate may run again after activation, adding
// new devices without disturbing ones already mounted. A device
// already active keeps the more permissive of its old and new modes
// (the union of their permission bits), never a more restrictive one.
type DeviceGateway struct {
	*Base

	mu      sync.Mutex
	pending []deviceEntry
	active  map[string]os.FileMode
}

// NewDeviceGateway constructs the device-node gateway in the CREATED
// state.
func NewDeviceGateway() *DeviceGateway {
	g := &DeviceGateway{active: make(map[string]os.FileMode)}
	g.Base = NewBase("device", true, g.readElement, g.activate, g.teardown)
	return g
}

func (g *DeviceGateway) readElement(raw json.RawMessage) error {
	var e deviceEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	if e.Name == "" {
		return fmt.Errorf("device gateway: name is required")
	}
	if _, err := parseMode(e.Mode); err != nil {
		return fmt.Errorf("device gateway: %s: %w", e.Name, err)
	}

	g.mu.Lock()
	g.pending = append(g.pending, e)
	g.mu.Unlock()
	return nil
}

func (g *DeviceGateway) activate(ctx context.Context, c *container.Container) error {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, e := range pending {
		mode, _ := parseMode(e.Mode)

		g.mu.Lock()
		existing, already := g.active[e.Name]
		if already {
			mode |= existing
		}
		g.mu.Unlock()

		if already && mode == existing {
			continue
		}
		if err := c.MountDevice(ctx, e.Name, mode); err != nil {
			return fmt.Errorf("device %s: %w", e.Name, err)
		}

		g.mu.Lock()
		g.active[e.Name] = mode
		g.mu.Unlock()
	}
	return nil
}

func (g *DeviceGateway) teardown() error {
	g.mu.Lock()
	g.active = make(map[string]os.FileMode)
	g.pending = nil
	g.mu.Unlock()
	return nil
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q: %w", s, err)
	}
	return os.FileMode(v), nil
}
