package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cuemby/warren/pkg/containerfs"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// AttachedGateway is the subset of a gateway's lifecycle a Container
// needs to know about: its stable id (for lookup) and how to tear it
// down on destroy. The full gateway state machine lives in
// pkg/gateway, which imports this package rather than the reverse.
type AttachedGateway interface {
	ID() string
	Teardown() error
}

// Container drives one OS-level container through the lifecycle
// described in the package doc. Exported methods are safe for
// concurrent use, though the supervisor's single reactor thread is
// the only expected caller.
type Container struct {
	mu sync.Mutex

	id              types.ContainerID
	sharedStateDir  string // <shared-mounts-dir>/SC-<id>
	rootfs          string // <shared-state-dir>/rootfs
	state           types.ContainerState
	config          types.ContainerConfig
	env             types.EnvMap
	gateways        map[string]AttachedGateway
	everConfigured  bool
	initPid         int

	undo    *containerfs.Stack
	tracker *containerfs.Tracker
	runtime Runtime

	log zerolog.Logger
}

// New constructs a Container in the CREATED state. sharedMountsDir is
// the host-level directory under which this container's state lives,
// per spec §6's "<shared-mounts-dir>/SC-<id>/" layout.
func New(id types.ContainerID, sharedMountsDir string, cfg types.ContainerConfig, rt Runtime) *Container {
	stateDir := filepath.Join(sharedMountsDir, fmt.Sprintf("SC-%d", id))
	return &Container{
		id:             id,
		sharedStateDir: stateDir,
		rootfs:         filepath.Join(stateDir, "rootfs"),
		state:          types.ContainerCreated,
		config:         cfg,
		env:            make(types.EnvMap),
		gateways:       make(map[string]AttachedGateway),
		undo:           containerfs.NewStack(int32(id)),
		tracker:        containerfs.NewTracker(),
		runtime:        rt,
		log:            log.WithContainerID(int32(id)),
	}
}

func (c *Container) ID() types.ContainerID { return c.id }
func (c *Container) Rootfs() string        { return c.rootfs }
func (c *Container) Config() types.ContainerConfig { return c.config }

// InitPid returns the container's init process host pid, valid once
// Start has succeeded and the container has not since been destroyed.
// Gateways use it to target nsenter-based namespace operations (e.g.
// the network gateway's interface configuration).
func (c *Container) InitPid() (int, bool) {
	return c.runtime.InitPid(c.id)
}

// GatewaysDir returns "<shared-state-dir>/gateways", created by
// Initialize, where dynamic gateways persist per-instance state such
// as a dbus-proxy socket.
func (c *Container) GatewaysDir() string {
	return filepath.Join(c.sharedStateDir, "gateways")
}

func (c *Container) State() types.ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Container) EverConfigured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.everConfigured
}

// MarkConfigured records that startGateways has succeeded at least
// once, suppressing the lazy default-capability application the
// agent runs on a container's first Execute.
func (c *Container) MarkConfigured() {
	c.mu.Lock()
	c.everConfigured = true
	c.mu.Unlock()
}

// Initialize prepares the container's persisted state directories.
// Must be called before Create.
func (c *Container) Initialize() error {
	for _, sub := range []string{"gateways", "late_mounts"} {
		if err := containerfs.EnsureDir(filepath.Join(c.sharedStateDir, sub), 0755, c.undo); err != nil {
			return newRuntimeError("initialize", err)
		}
	}
	return nil
}

// Create materializes the container's rootfs and registers it with
// the runtime driver. Idempotent once the container has reached
// READY; otherwise must be called exactly once from CREATED.
func (c *Container) Create(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ContainerReady || c.state == types.ContainerSuspended {
		return nil
	}
	if c.state != types.ContainerCreated {
		return newStateError("create", c.state)
	}

	if err := containerfs.EnsureDir(c.rootfs, 0755, c.undo); err != nil {
		return newRuntimeError("create", err)
	}
	if err := c.runtime.Create(ctx, c.id, c.rootfs, c.config); err != nil {
		return newRuntimeError("create", err)
	}
	return nil
}

// Start launches the container's init process. Transitions
// CREATED -> READY.
func (c *Container) Start(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ContainerInvalid {
		return 0, ErrInvalid
	}
	if c.state != types.ContainerCreated {
		return 0, newStateError("start", c.state)
	}

	pid, err := c.runtime.Start(ctx, c.id)
	if err != nil {
		return 0, newRuntimeError("start", err)
	}
	c.initPid = pid
	c.state = types.ContainerReady
	return pid, nil
}

// Stop best-effort stops the init process without tearing down any
// other state. Destroy does not call it; the runtime's Destroy does
// its own stop.
func (c *Container) Stop(ctx context.Context) error {
	if err := c.runtime.Stop(ctx, c.id); err != nil {
		c.log.Warn().Err(err).Msg("best-effort stop failed")
		return newRuntimeError("stop", err)
	}
	return nil
}

// Suspend freezes the container. READY -> SUSPENDED; failure drives
// the container INVALID.
func (c *Container) Suspend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ContainerInvalid {
		return ErrInvalid
	}
	if c.state != types.ContainerReady {
		return newStateError("suspend", c.state)
	}
	if err := c.runtime.Suspend(ctx, c.id); err != nil {
		c.state = types.ContainerInvalid
		return newRuntimeError("suspend", err)
	}
	c.state = types.ContainerSuspended
	return nil
}

// Resume thaws the container. SUSPENDED -> READY; failure drives the
// container INVALID.
func (c *Container) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ContainerInvalid {
		return ErrInvalid
	}
	if c.state != types.ContainerSuspended {
		return newStateError("resume", c.state)
	}
	if err := c.runtime.Resume(ctx, c.id); err != nil {
		c.state = types.ContainerInvalid
		return newRuntimeError("resume", err)
	}
	c.state = types.ContainerReady
	return nil
}

// Destroy gracefully (then forcibly) shuts down the container within
// timeout and unwinds its undo stack. Idempotent once TERMINATED;
// callable from any other state, including INVALID.
func (c *Container) Destroy(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ContainerTerminated {
		return nil
	}

	for _, gw := range c.gateways {
		if err := gw.Teardown(); err != nil {
			c.log.Warn().Err(err).Str("gateway", gw.ID()).Msg("gateway teardown failed during destroy")
		}
	}
	c.gateways = make(map[string]AttachedGateway)

	if err := c.runtime.Destroy(ctx, c.id, timeout); err != nil {
		c.log.Warn().Err(err).Msg("runtime destroy failed, continuing with undo stack unwind")
	}

	c.undo.Unwind()
	c.state = types.ContainerTerminated
	return nil
}

// BindMount creates a bind mount from hostPath into the container
// rootfs at containerPath. Valid from CREATED, READY or SUSPENDED.
func (c *Container) BindMount(hostPath, containerPath string, readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case types.ContainerInvalid:
		return ErrInvalid
	case types.ContainerTerminated:
		return newStateError("bindMount", c.state)
	}

	if err := containerfs.BindMount(hostPath, c.rootfs, containerPath, readOnly, c.tracker, c.undo); err != nil {
		return newRuntimeError("bindMount", err)
	}
	return nil
}

// MountDevice creates a device node inside the container mirroring
// the host device at hostPath, then chmod's it to mode.
func (c *Container) MountDevice(ctx context.Context, hostPath string, mode os.FileMode) error {
	c.mu.Lock()
	pid, ok := c.initPid, c.state == types.ContainerReady || c.state == types.ContainerSuspended
	c.mu.Unlock()
	if !ok {
		return newStateError("mountDevice", c.State())
	}

	var st unix.Stat_t
	if err := unix.Stat(hostPath, &st); err != nil {
		return newRuntimeError("mountDevice", fmt.Errorf("stat %s: %w", hostPath, err))
	}

	devKind := "c"
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		devKind = "b"
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))

	script := fmt.Sprintf("mkdir -p $(dirname %q) && rm -f %q && mknod %q %s %d %d && chmod %s %q",
		hostPath, hostPath, hostPath, devKind, major, minor, strconv.FormatUint(uint64(mode.Perm()), 8), hostPath)

	cmd := exec.CommandContext(ctx, "nsenter", "-t", strconv.Itoa(pid), "-m", "-u", "-i", "-n", "--", "/bin/sh", "-c", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return newRuntimeError("mountDevice", fmt.Errorf("%w (output: %s)", err, out))
	}
	return nil
}

// SetEnvironmentVariable contributes a variable to the container's
// default environment, last-write-wins per key, visible to
// subsequently spawned jobs.
func (c *Container) SetEnvironmentVariable(key, value string) {
	c.mu.Lock()
	c.env[key] = value
	c.mu.Unlock()
}

// Environment returns a copy of the container's current default
// environment.
func (c *Container) Environment() types.EnvMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(types.EnvMap, len(c.env))
	for k, v := range c.env {
		out[k] = v
	}
	return out
}

// SetCgroupItem applies a cgroup limit via the runtime driver.
func (c *Container) SetCgroupItem(ctx context.Context, subsystem, value string) error {
	if err := c.runtime.SetCgroupItem(ctx, c.id, subsystem, value); err != nil {
		return newRuntimeError("setCgroupItem", err)
	}
	return nil
}

// Attach forks a process running cmdline inside the container's
// namespaces. The merged environment is the container default
// environment overridden by spec.Env.
func (c *Container) Attach(ctx context.Context, cmdline string, spec AttachSpec) (int, error) {
	c.mu.Lock()
	if c.state != types.ContainerReady {
		c.mu.Unlock()
		return 0, newStateError("attach", c.state)
	}
	spec.Env = c.env.Merge(spec.Env)
	c.mu.Unlock()

	pid, err := c.runtime.Attach(ctx, c.id, spec, cmdline)
	if err != nil {
		return 0, newRuntimeError("attach", err)
	}
	return pid, nil
}

// ExecuteInContainer runs fn inside the container's joined
// namespaces; fn's return value becomes the synthetic exit code,
// delivered to onExit once fn returns.
func (c *Container) ExecuteInContainer(ctx context.Context, fn func() int, spec AttachSpec, onExit func(int)) (int, error) {
	c.mu.Lock()
	if c.state != types.ContainerReady {
		c.mu.Unlock()
		return 0, newStateError("executeInContainer", c.state)
	}
	spec.Env = c.env.Merge(spec.Env)
	c.mu.Unlock()

	pid, err := c.runtime.Execute(ctx, c.id, spec, fn, onExit)
	if err != nil {
		return 0, newRuntimeError("executeInContainer", err)
	}
	return pid, nil
}

// AttachGateway registers a configured gateway as owned by this
// container for the remainder of its lifetime. Fails if a gateway
// with the same id is already attached.
func (c *Container) AttachGateway(gw AttachedGateway) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.gateways[gw.ID()]; exists {
		return fmt.Errorf("container: gateway %q is already attached", gw.ID())
	}
	c.gateways[gw.ID()] = gw
	return nil
}

// Gateway looks up a previously attached gateway by id.
func (c *Container) Gateway(id string) (AttachedGateway, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gw, ok := c.gateways[id]
	return gw, ok
}

// Gateways returns every gateway currently attached, in no
// particular order.
func (c *Container) Gateways() []AttachedGateway {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AttachedGateway, 0, len(c.gateways))
	for _, gw := range c.gateways {
		out = append(out, gw)
	}
	return out
}
