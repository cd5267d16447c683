package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/dbusproxy"
)

// dbusEntry is one element of a D-Bus gateway's config array (spec
// §4.3.5): a message matches when its direction, interface, object
// path, and method/signal name all match the corresponding field.
// Every field defaults to "*" (match anything) when omitted.
type dbusEntry struct {
	Direction  string `json:"direction"`
	Interface  string `json:"interface"`
	ObjectPath string `json:"object-path"`
	Method     string `json:"method"`
}

func (e dbusEntry) normalized() dbusEntry {
	n := e
	if n.Direction == "" {
		n.Direction = "*"
	}
	if n.Interface == "" {
		n.Interface = "*"
	}
	if n.ObjectPath == "" {
		n.ObjectPath = "*"
	}
	if n.Method == "" {
		n.Method = "*"
	}
	return n
}

// DBusGateway supervises a dbus-proxy subprocess bridging a
// container's namespace to one host D-Bus instance (session or
// system bus). Two independent instances are constructed — one per
// bus — since a container may be granted access to either or both.
// Dynamic: further setConfig/activate calls extend the running
// proxy's filter set rather than restarting it.
type DBusGateway struct {
	*Base

	kind dbusproxy.BusKind
	env  string // DBUS_SESSION_BUS_ADDRESS or DBUS_SYSTEM_BUS_ADDRESS

	mu      sync.Mutex
	pending []dbusEntry
	proxy   *dbusproxy.Proxy
}

// NewSessionDBusGateway constructs the session-bus D-Bus gateway.
func NewSessionDBusGateway() *DBusGateway {
	return newDBusGateway("dbus-session", dbusproxy.SessionBus, "DBUS_SESSION_BUS_ADDRESS")
}

// NewSystemDBusGateway constructs the system-bus D-Bus gateway.
func NewSystemDBusGateway() *DBusGateway {
	return newDBusGateway("dbus-system", dbusproxy.SystemBus, "DBUS_SYSTEM_BUS_ADDRESS")
}

func newDBusGateway(id string, kind dbusproxy.BusKind, envVar string) *DBusGateway {
	g := &DBusGateway{kind: kind, env: envVar}
	g.Base = NewBase(id, true, g.readElement, g.activate, g.teardown)
	return g
}

func (g *DBusGateway) readElement(raw json.RawMessage) error {
	var e dbusEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	switch e.Direction {
	case "", "outgoing", "incoming", "*":
	default:
		return fmt.Errorf("%s gateway: direction must be outgoing, incoming, or *, got %q", g.ID(), e.Direction)
	}

	g.mu.Lock()
	g.pending = append(g.pending, e.normalized())
	g.mu.Unlock()
	return nil
}

func (g *DBusGateway) activate(ctx context.Context, c *container.Container) error {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	proxy := g.proxy
	g.mu.Unlock()

	if proxy == nil {
		if _, ok := os.LookupEnv(g.env); !ok {
			if g.kind == dbusproxy.SessionBus {
				return fmt.Errorf("%s gateway: host environment has no %s set, session bus is unreachable", g.ID(), g.env)
			}
			g.log.Warn().Str("variable", g.env).Msg("host environment has no system bus address set, dbus-proxy may be unable to reach it")
		}

		// Unique per activation, not just per gateway id: if a
		// previous proxy's socket file survived an unclean Kill, a
		// fixed name would collide with it on the next activation.
		socketPath := filepath.Join(c.GatewaysDir(), g.ID()+"-"+uuid.NewString()+".sock")
		p, err := dbusproxy.Start(ctx, socketPath, g.kind)
		if err != nil {
			return fmt.Errorf("%s gateway: %w", g.ID(), err)
		}

		busAddr := "unix:path=" + p.SocketPath()
		if _, err := dbus.ParseAddresses(busAddr); err != nil {
			_ = p.Kill()
			return fmt.Errorf("%s gateway: constructed an invalid bus address %q: %w", g.ID(), busAddr, err)
		}
		c.SetEnvironmentVariable(g.env, busAddr)

		g.mu.Lock()
		g.proxy = p
		proxy = p
		g.mu.Unlock()
	}

	if len(pending) == 0 {
		return nil
	}

	rules := make([]dbusproxy.FilterRule, 0, len(pending))
	for _, e := range pending {
		rules = append(rules, dbusproxy.FilterRule{
			Direction:  e.Direction,
			Interface:  e.Interface,
			ObjectPath: e.ObjectPath,
			Method:     e.Method,
		})
	}
	if err := proxy.WriteConfig(rules); err != nil {
		return fmt.Errorf("%s gateway: %w", g.ID(), err)
	}
	return nil
}

func (g *DBusGateway) teardown() error {
	g.mu.Lock()
	proxy := g.proxy
	g.proxy = nil
	g.mu.Unlock()

	if proxy == nil {
		return nil
	}
	return proxy.Kill()
}
