package agent

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/gateway"
	"github.com/cuemby/warren/pkg/types"
)

// gatewaySet is the fixed collection of gateway instances owned by
// one container: one of each kind the daemon supports, constructed
// fresh per container so per-instance state (pending device nodes, a
// dbus-proxy subprocess, accumulated env vars) never leaks across
// containers. The network gateway's IP allocator is the one piece of
// state that is intentionally shared across an agent's containers,
// since host octets are scoped to a bridge device, not a container.
type gatewaySet struct {
	byID map[string]gateway.Gateway
}

func newGatewaySet(ipAlloc *gateway.IPAllocator) *gatewaySet {
	gws := []gateway.Gateway{
		gateway.NewNetworkGateway(ipAlloc),
		gateway.NewFileGateway(),
		gateway.NewDeviceGateway(),
		gateway.NewCgroupsGateway(),
		gateway.NewSessionDBusGateway(),
		gateway.NewSystemDBusGateway(),
		gateway.NewWaylandGateway(),
		gateway.NewPulseGateway(),
		gateway.NewEnvGateway(),
	}
	byID := make(map[string]gateway.Gateway, len(gws))
	for _, g := range gws {
		byID[g.ID()] = g
	}
	return &gatewaySet{byID: byID}
}

// gatewayActivationOrder is the fixed sequence gateways activate in,
// regardless of the order a container's fragments name them: later
// gateways may depend on state earlier ones establish (env references
// paths file sets up).
var gatewayActivationOrder = []string{
	"network", "file", "device", "cgroups",
	"dbus-session", "dbus-system", "wayland", "pulse", "env",
}

// apply feeds each fragment's config to its target gateway, then
// activates every gateway that received one this call in
// gatewayActivationOrder. Per the propagation policy (spec §7), the
// first error aborts whatever is left (remaining SetConfig calls, or
// remaining activations) but gateways already activated in this call
// (or a previous one) are never rolled back.
func (gs *gatewaySet) apply(ctx context.Context, id types.ContainerID, c *container.Container, fragments []types.GatewayConfigFragment) error {
	configured := make(map[string]bool, len(fragments))
	for _, frag := range fragments {
		g, ok := gs.byID[frag.GatewayID]
		if !ok {
			return &GatewayConfigError{ID: id, Err: fmt.Errorf("unknown gateway id %q", frag.GatewayID)}
		}
		if err := g.SetConfig(frag.Config); err != nil {
			return translateGatewayErr(id, "setConfig", err)
		}
		configured[frag.GatewayID] = true
	}

	for _, gatewayID := range gatewayActivationOrder {
		if !configured[gatewayID] {
			continue
		}
		g := gs.byID[gatewayID]
		if err := g.Activate(ctx, c); err != nil {
			return translateGatewayErr(id, "activate", err)
		}
		if _, attached := c.Gateway(g.ID()); !attached {
			if err := c.AttachGateway(g); err != nil {
				return &InternalError{Op: "attachGateway", Err: err}
			}
		}
	}
	return nil
}
