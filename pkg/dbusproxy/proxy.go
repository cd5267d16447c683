package dbusproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/log"
)

// socketPollInterval and socketPollTimeout bound how long Start waits
// for the dbus-proxy binary to create its listening socket.
const (
	socketPollInterval = 100 * time.Millisecond
	socketPollTimeout  = 10 * time.Second
)

// BusKind selects which host bus a Proxy filters access to.
type BusKind string

const (
	SessionBus BusKind = "session"
	SystemBus  BusKind = "system"
)

// FilterRule is one entry of the JSON configuration document written
// to the proxy's stdin (spec §4.3.5): a message matches when its call
// direction, interface, object path, and method/signal name each
// match the corresponding field here, with "*" (and an empty string,
// which the gateway normalizes to "*") matching anything.
type FilterRule struct {
	Direction  string `json:"direction"`   // "outgoing", "incoming", or "*"
	Interface  string `json:"interface"`   // D-Bus interface name pattern, or "*"
	ObjectPath string `json:"object-path"` // path pattern, or "*"
	Method     string `json:"method"`      // method/signal name, or "*"
}

// Proxy supervises one running dbus-proxy subprocess bridging a
// container's namespace to a host D-Bus instance.
type Proxy struct {
	mu         sync.Mutex
	kind       BusKind
	socketPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	log        zerolog.Logger
}

// Start spawns the dbus-proxy helper for socketPath/kind and blocks
// until the socket exists or socketPollTimeout elapses.
func Start(ctx context.Context, socketPath string, kind BusKind) (*Proxy, error) {
	cmd := exec.CommandContext(ctx, "dbus-proxy", socketPath, string(kind))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("dbusproxy: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("dbusproxy: start: %w", err)
	}

	p := &Proxy{
		kind:       kind,
		socketPath: socketPath,
		cmd:        cmd,
		stdin:      stdin,
		log:        log.WithComponent("dbus-proxy-" + string(kind)),
	}

	if err := p.waitForSocket(ctx); err != nil {
		_ = p.Kill()
		return nil, err
	}
	return p, nil
}

func (p *Proxy) waitForSocket(ctx context.Context) error {
	deadline := time.Now().Add(socketPollTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(p.socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(socketPollInterval):
		}
	}
	return fmt.Errorf("dbusproxy: socket %s did not appear within %s", p.socketPath, socketPollTimeout)
}

// WriteConfig pushes an additional set of filter rules to the running
// proxy: one JSON array followed by a newline. The proxy acknowledges
// by design only in that a short write is treated as failure, since
// the helper expects to read the whole line in one read(2).
func (p *Proxy) WriteConfig(rules []FilterRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("dbusproxy: marshal config: %w", err)
	}
	payload = append(payload, '\n')

	n, err := p.stdin.Write(payload)
	if err != nil {
		return fmt.Errorf("dbusproxy: write config: %w", err)
	}
	if n != len(payload) {
		return fmt.Errorf("dbusproxy: short write: wrote %d of %d bytes", n, len(payload))
	}
	return nil
}

// SocketPath returns the unix socket path the container should point
// its DBUS_*_BUS_ADDRESS at.
func (p *Proxy) SocketPath() string { return p.socketPath }

// Kill forcibly terminates the proxy and removes its socket. Safe to
// call more than once.
func (p *Proxy) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(syscall.SIGKILL); err != nil {
			p.log.Warn().Err(err).Msg("failed to signal dbus-proxy")
		}
		_ = p.cmd.Wait()
	}
	if err := os.Remove(p.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dbusproxy: remove socket %s: %w", p.socketPath, err)
	}
	return nil
}
