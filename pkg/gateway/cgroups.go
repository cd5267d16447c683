package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// cgroupEntry is one element of the cgroups gateway's config array
// (spec §4.3.4): {"setting": "memory.limit_in_bytes", "value": "..."}.
type cgroupEntry struct {
	Setting string `json:"setting"`
	Value   string `json:"value"`
}

// CgroupsGateway applies raw cgroup subsystem settings to a container.
// Not dynamic: activation applies every accumulated setting in
// configuration order and stops at the first failure without rolling
// back settings already applied.
type CgroupsGateway struct {
	*Base

	mu    sync.Mutex
	order []string
	items map[string]string
}

// NewCgroupsGateway constructs the cgroups gateway in the CREATED
// state.
func NewCgroupsGateway() *CgroupsGateway {
	g := &CgroupsGateway{items: make(map[string]string)}
	g.Base = NewBase("cgroups", false, g.readElement, g.activate, g.teardown)
	return g
}

func (g *CgroupsGateway) readElement(raw json.RawMessage) error {
	var e cgroupEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	if e.Setting == "" {
		return fmt.Errorf("cgroups gateway: setting is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.items[e.Setting]; exists {
		g.log.Warn().Str("setting", e.Setting).Msg("duplicate cgroup setting, last value wins")
	} else {
		g.order = append(g.order, e.Setting)
	}
	g.items[e.Setting] = e.Value
	return nil
}

func (g *CgroupsGateway) activate(ctx context.Context, c *container.Container) error {
	g.mu.Lock()
	order := append([]string(nil), g.order...)
	items := make(map[string]string, len(g.items))
	for k, v := range g.items {
		items[k] = v
	}
	g.mu.Unlock()

	for _, setting := range order {
		if err := c.SetCgroupItem(ctx, setting, items[setting]); err != nil {
			return fmt.Errorf("cgroup setting %s=%s: %w", setting, items[setting], err)
		}
	}
	return nil
}

func (g *CgroupsGateway) teardown() error {
	// Cgroup limits are one-shot and not reversed; the container's
	// cgroup is destroyed along with the container itself.
	return nil
}
