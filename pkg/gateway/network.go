package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/warren/pkg/container"
)

// networkRule is one allow-list entry within a networkEntry (spec
// §4.3.1): an optional host filter, an optional port filter, an
// optional protocol filter, and the iptables target to apply when it
// matches.
type networkRule struct {
	Host      string       `json:"host"`
	Ports     portList     `json:"ports"`
	Protocols protocolList `json:"protocols"`
	Target    string       `json:"target"` // ACCEPT, DROP or REJECT
}

// networkEntry is one element of the network gateway's config array:
// a traffic direction plus the ordered allow rules to install for it.
type networkEntry struct {
	Direction string        `json:"direction"` // INCOMING or OUTGOING
	Allow     []networkRule `json:"allow"`
}

func (r networkRule) iptablesChain(direction string) string {
	if direction == "INCOMING" {
		return "INPUT"
	}
	return "OUTPUT"
}

// effectiveProtocols resolves the protocol set a rule's iptables
// entries are installed for. An explicit "protocols" field wins; a
// port filter with none given implies tcp and udp, since only those
// two protocols carry ports; a rule with neither is protocol-agnostic
// and gets a single rule with no "-p" at all.
func (r networkRule) effectiveProtocols() []string {
	if len(r.Protocols) > 0 {
		return r.Protocols
	}
	if len(r.Ports) > 0 {
		return []string{"tcp", "udp"}
	}
	return nil
}

// portList normalizes spec §4.3.1's `ports` grammar — a bare integer,
// a "N:M" range string, or an array of either — into iptables
// --dport/--dports tokens.
type portList []string

func (p *portList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tokens, err := portTokensFrom(raw)
	if err != nil {
		return err
	}
	*p = tokens
	return nil
}

func portTokensFrom(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case float64:
		return []string{strconv.Itoa(int(t))}, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			tokens, err := portTokensFrom(item)
			if err != nil {
				return nil, err
			}
			out = append(out, tokens...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("network gateway: ports must be an integer, a \"N:M\" range, or an array of either, got %T", v)
	}
}

// protocolList normalizes spec §4.3.1's `protocols` grammar — a bare
// string or an array of strings, each one of tcp/udp/icmp.
type protocolList []string

func (p *protocolList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values, err := protocolValuesFrom(raw)
	if err != nil {
		return err
	}
	*p = values
	return nil
}

func protocolValuesFrom(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		if err := validateProtocol(t); err != nil {
			return nil, err
		}
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			values, err := protocolValuesFrom(item)
			if err != nil {
				return nil, err
			}
			out = append(out, values...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("network gateway: protocols must be a string or an array of strings, got %T", v)
	}
}

func validateProtocol(proto string) error {
	switch proto {
	case "tcp", "udp", "icmp":
		return nil
	default:
		return fmt.Errorf("network gateway: invalid protocol %q", proto)
	}
}

// IPAllocator hands out host-local IPv4 addresses for containers
// sharing a bridge device. The counter for a given bridge starts at 2
// and wraps back to 2 after 254, per the container network address
// assignment rule.
type IPAllocator struct {
	mu   sync.Mutex
	next map[string]int
}

// NewIPAllocator creates an empty allocator. One instance is shared by
// every network gateway attached to containers on the same agent.
func NewIPAllocator() *IPAllocator {
	return &IPAllocator{next: make(map[string]int)}
}

// Allocate returns the next host octet for bridgeDevice.
func (a *IPAllocator) Allocate(bridgeDevice string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.next[bridgeDevice]
	if !ok {
		n = 2
	}
	result := n
	n++
	if n > 254 {
		n = 2
	}
	a.next[bridgeDevice] = n
	return result
}

// NetworkGateway attaches a container's eth0 to a host bridge with an
// allocated address and installs iptables filter rules for it inside
// the container's network namespace. Not dynamic.
type NetworkGateway struct {
	*Base

	alloc *IPAllocator

	mu      sync.Mutex
	entries []networkEntry
}

// NewNetworkGateway constructs the network gateway in the CREATED
// state, sharing alloc with every other network gateway on the same
// bridge.
func NewNetworkGateway(alloc *IPAllocator) *NetworkGateway {
	g := &NetworkGateway{alloc: alloc}
	g.Base = NewBase("network", false, g.readElement, g.activate, g.teardown)
	return g
}

func (g *NetworkGateway) readElement(raw json.RawMessage) error {
	var e networkEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	if e.Direction != "INCOMING" && e.Direction != "OUTGOING" {
		return fmt.Errorf("network gateway: direction must be INCOMING or OUTGOING, got %q", e.Direction)
	}
	for _, rule := range e.Allow {
		switch rule.Target {
		case "ACCEPT", "DROP", "REJECT":
		default:
			return fmt.Errorf("network gateway: invalid target %q", rule.Target)
		}
	}

	g.mu.Lock()
	g.entries = append(g.entries, e)
	g.mu.Unlock()
	return nil
}

func (g *NetworkGateway) activate(ctx context.Context, c *container.Container) error {
	bridge := c.Config().Bridge
	if bridge == nil {
		return fmt.Errorf("network gateway: container has no bridge configured")
	}

	if err := verifyHostBridge(ctx, bridge.Device, bridge.IPv4Address, bridge.PrefixLength); err != nil {
		return err
	}

	pid, ok := c.InitPid()
	if !ok {
		return fmt.Errorf("network gateway: container has no init pid yet")
	}

	if err := nsenterRun(ctx, pid, "ip", "link", "set", "eth0", "up"); err != nil {
		return fmt.Errorf("network gateway: bring up eth0: %w", err)
	}

	octet := g.alloc.Allocate(bridge.Device)
	containerIP := subnetWithOctet(bridge.IPv4Address, octet)
	cidr := fmt.Sprintf("%s/%d", containerIP, bridge.PrefixLength)

	if err := nsenterRun(ctx, pid, "ip", "addr", "add", cidr, "dev", "eth0"); err != nil {
		return fmt.Errorf("network gateway: assign address: %w", err)
	}
	if err := nsenterRun(ctx, pid, "ip", "route", "add", "default", "via", bridge.IPv4Address); err != nil {
		return fmt.Errorf("network gateway: set default route: %w", err)
	}

	g.mu.Lock()
	entries := append([]networkEntry(nil), g.entries...)
	g.mu.Unlock()

	for _, e := range entries {
		for _, rule := range e.Allow {
			protocols := rule.effectiveProtocols()
			if len(protocols) == 0 {
				args := buildIPTablesArgs(e.Direction, rule, "")
				if err := nsenterRunArgs(ctx, pid, "iptables", args); err != nil {
					return fmt.Errorf("network gateway: install rule %s: %w", strings.Join(args, " "), err)
				}
				continue
			}
			for _, proto := range protocols {
				args := buildIPTablesArgs(e.Direction, rule, proto)
				if err := nsenterRunArgs(ctx, pid, "iptables", args); err != nil {
					return fmt.Errorf("network gateway: install rule %s: %w", strings.Join(args, " "), err)
				}
			}
		}
	}
	return nil
}

// buildIPTablesArgs renders one rule into a single iptables(8)
// invocation's arguments for the given protocol ("" meaning no -p
// filter at all). A single port token uses --dport directly (which
// also accepts a bare "N:M" range); more than one token requires the
// multiport match, per spec §4.3.1 ("array implies multiport").
func buildIPTablesArgs(direction string, rule networkRule, proto string) []string {
	args := []string{"-A", rule.iptablesChain(direction)}
	if rule.Host != "" && rule.Host != "*" {
		args = append(args, "-s", rule.Host)
	}
	if proto != "" {
		args = append(args, "-p", proto)
	}
	switch len(rule.Ports) {
	case 0:
	case 1:
		args = append(args, "--dport", rule.Ports[0])
	default:
		args = append(args, "--match", "multiport", "--dports", strings.Join(rule.Ports, ","))
	}
	args = append(args, "-j", rule.Target)
	return args
}

func (g *NetworkGateway) teardown() error {
	// The network namespace is destroyed along with the container's
	// init process; no separate interface/iptables cleanup is needed.
	return nil
}

// subnetWithOctet replaces the last dotted-decimal component of a
// bridge address with octet, e.g. ("10.0.3.1", 5) -> "10.0.3.5".
func subnetWithOctet(bridgeAddr string, octet int) string {
	parts := strings.Split(bridgeAddr, ".")
	if len(parts) != 4 {
		return bridgeAddr
	}
	parts[3] = strconv.Itoa(octet)
	return strings.Join(parts, ".")
}

// verifyHostBridge confirms bridgeDevice exists on the host and
// carries ipv4Addr/prefixLen, matching the original implementation's
// isBridgeAvailable() (netlink findLink + hasAddress). This codebase
// has no netlink library in its dependency surface, so the host-side
// probe shells out to "ip" the same way nsenterRunArgs does for the
// container side, rather than the container-side's nsenter wrapping.
func verifyHostBridge(ctx context.Context, bridgeDevice, ipv4Addr string, prefixLen int) error {
	out, err := exec.CommandContext(ctx, "ip", "-4", "-o", "addr", "show", "dev", bridgeDevice).Output()
	if err != nil {
		return fmt.Errorf("network gateway: bridge device %q not found on host: %w", bridgeDevice, err)
	}
	if !bridgeAddressPresent(string(out), ipv4Addr, prefixLen) {
		return fmt.Errorf("network gateway: bridge device %q has no address %s/%d configured on host", bridgeDevice, ipv4Addr, prefixLen)
	}
	return nil
}

// bridgeAddressPresent reports whether "ip addr show"'s output lists
// the exact inet address/prefix pair for a bridge device.
func bridgeAddressPresent(ipAddrOutput, ipv4Addr string, prefixLen int) bool {
	needle := fmt.Sprintf("inet %s/%d", ipv4Addr, prefixLen)
	return strings.Contains(ipAddrOutput, needle)
}

func nsenterRun(ctx context.Context, pid int, name string, args ...string) error {
	return nsenterRunArgs(ctx, pid, name, args)
}

func nsenterRunArgs(ctx context.Context, pid int, name string, args []string) error {
	full := append([]string{"-t", strconv.Itoa(pid), "-n", "--", name}, args...)
	cmd := exec.CommandContext(ctx, "nsenter", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, out)
	}
	return nil
}
