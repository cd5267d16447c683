package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// pulseConfig is the sole element of the pulse gateway's config array
// (spec §4.3.7): {"audio": true}.
type pulseConfig struct {
	Audio bool `json:"audio"`
}

// PulseGateway bind-mounts the host PulseAudio socket into the
// container and points PULSE_SERVER at it. Not dynamic: audio is
// granted once per activation and does not change afterward.
type PulseGateway struct {
	*Base

	mu      sync.Mutex
	enabled bool
}

// NewPulseGateway constructs the pulse gateway in the CREATED state.
func NewPulseGateway() *PulseGateway {
	g := &PulseGateway{}
	g.Base = NewBase("pulse", false, g.readElement, g.activate, g.teardown)
	return g
}

func (g *PulseGateway) readElement(raw json.RawMessage) error {
	var e pulseConfig
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	g.mu.Lock()
	g.enabled = g.enabled || e.Audio
	g.mu.Unlock()
	return nil
}

func (g *PulseGateway) activate(_ context.Context, c *container.Container) error {
	g.mu.Lock()
	enabled := g.enabled
	g.mu.Unlock()
	if !enabled {
		return nil
	}

	hostSocket := filepath.Join(hostXDGRuntimeDir(), "pulse", "native")
	containerSocket := "/gateways/pulse"

	if err := c.BindMount(hostSocket, containerSocket, true); err != nil {
		return fmt.Errorf("pulse gateway: %w", err)
	}
	c.SetEnvironmentVariable("PULSE_SERVER", "unix:"+containerSocket)
	return nil
}

func (g *PulseGateway) teardown() error {
	return nil
}
