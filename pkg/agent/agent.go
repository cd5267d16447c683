package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/gateway"
	"github.com/cuemby/warren/pkg/job"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// entry is the registry's value type: a container together with the
// gateway instances scoped to it for the remainder of its lifetime.
type entry struct {
	container *container.Container
	gateways  *gatewaySet
}

// Agent is the RPC-facing container registry (spec §4.4). It owns no
// goroutines of its own beyond those started by the reactor and jobs
// it is handed at construction; every exported method is meant to run
// from the daemon's single reactor thread.
type Agent struct {
	mu         sync.Mutex
	containers map[types.ContainerID]*entry
	pool       *idPool
	preloaded  []types.ContainerID

	rt      container.Runtime
	reactor *notifier.Reactor
	cfg     config.Resolved

	capStore            capability.Store
	defaultCapabilities []types.GatewayConfigFragment
	ipAlloc             *gateway.IPAllocator
	registry            RegistryStore

	log zerolog.Logger
}

// SetRegistryStore attaches a durable RegistryStore so future
// CreateContainer/destroy calls persist id allocation across a daemon
// restart. Nil (the default) keeps the agent in-memory only. Not
// concurrency-safe with CreateContainer/destroy; call it before the
// agent serves any request.
func (a *Agent) SetRegistryStore(store RegistryStore) {
	a.registry = store
}

// RestoreIDs reserves every id found in the attached RegistryStore so
// the id pool never reissues one still on record from before a
// restart. It does not recreate registry entries or reattach to any
// containerd task the id's container may still have running — an
// operator who needs those containers back under this agent's control
// must destroy and recreate them. Call once, before the agent serves
// any request; a nil registry store makes this a no-op.
func (a *Agent) RestoreIDs() error {
	if a.registry == nil {
		return nil
	}
	persisted, err := a.registry.LoadAll()
	if err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}
	var maxID types.ContainerID
	for id := range persisted {
		if id > maxID {
			maxID = id
		}
	}
	if len(persisted) > 0 {
		a.pool.Reserve(maxID)
		a.log.Warn().Int("count", len(persisted)).Int32("highWaterMark", int32(maxID)).
			Msg("reserved ids from a prior run; their containers were not reattached")
	}
	return nil
}

// New constructs an empty Agent. defaultCapabilities is the fragment
// set applied lazily to every container on its first Execute call
// (spec §4.4 "everConfigured"), and appended after any capability
// bundles explicitly requested via SetCapabilities.
func New(cfg config.Resolved, rt container.Runtime, reactor *notifier.Reactor, capStore capability.Store, defaultCapabilities []types.GatewayConfigFragment) *Agent {
	return &Agent{
		containers:          make(map[types.ContainerID]*entry),
		pool:                newIDPool(),
		rt:                  rt,
		reactor:             reactor,
		cfg:                 cfg,
		capStore:            capStore,
		defaultCapabilities: defaultCapabilities,
		ipAlloc:             gateway.NewIPAllocator(),
		log:                 log.WithComponent("agent"),
	}
}

func validateID(id types.ContainerID) error {
	if int64(id) < 0 || int64(id) >= types.MaxContainerID {
		return &InvalidContainerIdError{ID: id}
	}
	return nil
}

func (a *Agent) lookup(id types.ContainerID) (*entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.containers[id]
	if !ok {
		return nil, &NoSuchContainerError{ID: id}
	}
	return e, nil
}

// applyDynamicOptions layers the dynamic-options JSON array (spec §6)
// onto the agent's static default configuration. An empty or blank
// raw value is a no-op: CreateContainer("") just gets the defaults.
func applyDynamicOptions(base types.ContainerConfig, raw string) (types.ContainerConfig, error) {
	cfg := base
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	var opts []types.DynamicContainerOption
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return cfg, fmt.Errorf("parse dynamic options: %w", err)
	}
	for _, o := range opts {
		if o.WriteBufferEnabled != nil {
			cfg.WriteBufferEnabled = *o.WriteBufferEnabled
		}
		if o.TemporaryFileSystemWriteBufferEnabled != nil {
			cfg.TemporaryFileSystemEnabled = *o.TemporaryFileSystemWriteBufferEnabled
		}
		if o.TemporaryFileSystemSize != nil {
			cfg.TemporaryFileSystemSize = *o.TemporaryFileSystemSize
		}
	}
	return cfg, nil
}

// CreateContainer parses dynamicOptsJSON, clones the agent's default
// container configuration with those overrides applied, allocates an
// id from the pool, and brings the container all the way to READY. A
// blank dynamicOptsJSON is served from the preload pool first, if
// Preload left anything in it, since a preloaded container already
// matches the agent's unmodified defaults. On any failure the id is
// returned to the pool so it is never leaked.
func (a *Agent) CreateContainer(ctx context.Context, dynamicOptsJSON string) (types.ContainerID, error) {
	if strings.TrimSpace(dynamicOptsJSON) == "" {
		if id, ok := a.takePreloaded(); ok {
			a.log.Info().Int32("container", int32(id)).Msg("container served from preload pool")
			return id, nil
		}
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerCreateDuration)

	cfg, err := applyDynamicOptions(a.cfg.DefaultContainerConfig, dynamicOptsJSON)
	if err != nil {
		return types.InvalidContainerID, &InternalError{Op: "createContainer", Err: err}
	}

	id, err := a.createWithConfig(ctx, cfg)
	if err != nil {
		return types.InvalidContainerID, err
	}
	a.log.Info().Int32("container", int32(id)).Msg("container created")
	return id, nil
}

// createWithConfig allocates an id and brings a container all the way
// to READY under cfg, without touching the preload pool. Shared by
// CreateContainer and Preload so both go through identical
// initialize/create/start sequencing.
func (a *Agent) createWithConfig(ctx context.Context, cfg types.ContainerConfig) (types.ContainerID, error) {
	id := a.pool.Pop()
	c := container.New(id, a.cfg.SharedMountsDir, cfg, a.rt)

	if err := c.Initialize(); err != nil {
		a.pool.Push(id)
		return types.InvalidContainerID, translateContainerErr(id, "initialize", err)
	}
	if err := c.Create(ctx); err != nil {
		a.pool.Push(id)
		return types.InvalidContainerID, translateContainerErr(id, "create", err)
	}
	if _, err := c.Start(ctx); err != nil {
		a.pool.Push(id)
		return types.InvalidContainerID, translateContainerErr(id, "start", err)
	}

	a.mu.Lock()
	a.containers[id] = &entry{container: c, gateways: newGatewaySet(a.ipAlloc)}
	a.mu.Unlock()

	if a.registry != nil {
		if err := a.registry.Put(id, cfg); err != nil {
			a.log.Warn().Err(err).Int32("container", int32(id)).Msg("failed to persist container to registry store")
		}
	}
	return id, nil
}

// Preload pre-creates n containers under the agent's unmodified
// default configuration and parks their ids in the preload pool so
// the first n blank-options CreateContainer calls return instantly.
// The pool is filled once, at startup, and is never replenished: this
// mirrors the preload-count warm start the original agent offers, not
// a continuously-topped-up cache. A failure partway through leaves
// whatever containers were already created registered and usable; it
// is reported so the caller can decide whether to continue starting
// up.
func (a *Agent) Preload(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		id, err := a.createWithConfig(ctx, a.cfg.DefaultContainerConfig)
		if err != nil {
			return fmt.Errorf("preload container %d/%d: %w", i+1, n, err)
		}
		a.mu.Lock()
		a.preloaded = append(a.preloaded, id)
		a.mu.Unlock()
	}
	a.log.Info().Int("count", n).Msg("preloaded containers")
	return nil
}

// takePreloaded pops the oldest preloaded id, if any remain.
func (a *Agent) takePreloaded() (types.ContainerID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.preloaded) == 0 {
		return types.InvalidContainerID, false
	}
	id := a.preloaded[0]
	a.preloaded = a.preloaded[1:]
	return id, true
}

// destroy is shared by DeleteContainer and ShutdownContainer: both
// names appear in spec §4.4, but the wire protocol (spec §6) exposes
// a single "Destroy" RPC and both describe the same effect — tear the
// container down, drop it from the registry, and return its id to the
// pool. Both therefore honor the container's own configured timeout
// over the agent-wide default.
func (a *Agent) destroy(ctx context.Context, id types.ContainerID) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerDestroyDuration)

	e, err := a.lookup(id)
	if err != nil {
		return err
	}

	timeout := a.cfg.ShutdownGracePeriod
	if s := e.container.Config().ShutdownTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}

	if err := e.container.Destroy(ctx, timeout); err != nil {
		return translateContainerErr(id, "destroy", err)
	}

	a.mu.Lock()
	delete(a.containers, id)
	a.mu.Unlock()
	a.pool.Push(id)

	if a.registry != nil {
		if err := a.registry.Delete(id); err != nil {
			a.log.Warn().Err(err).Int32("container", int32(id)).Msg("failed to remove container from registry store")
		}
	}
	return nil
}

// DeleteContainer removes a container from the registry, tearing it
// down first. See destroy.
func (a *Agent) DeleteContainer(ctx context.Context, id types.ContainerID) error {
	return a.destroy(ctx, id)
}

// ShutdownContainer tears a container down using its configured
// shutdown timeout. See destroy.
func (a *Agent) ShutdownContainer(ctx context.Context, id types.ContainerID) error {
	return a.destroy(ctx, id)
}

// ListContainers returns every currently registered id, ascending.
func (a *Agent) ListContainers() []types.ContainerID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.ContainerID, 0, len(a.containers))
	for id := range a.containers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StateCounts tallies registered containers by lifecycle state, for
// the periodic gauge refresh in pkg/metrics.
func (a *Agent) StateCounts() map[types.ContainerState]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[types.ContainerState]int)
	for _, e := range a.containers {
		counts[e.container.State()]++
	}
	return counts
}

// SuspendContainer freezes a container's processes.
func (a *Agent) SuspendContainer(ctx context.Context, id types.ContainerID) error {
	e, err := a.lookup(id)
	if err != nil {
		return err
	}
	if err := e.container.Suspend(ctx); err != nil {
		return translateContainerErr(id, "suspend", err)
	}
	return nil
}

// ResumeContainer thaws a previously suspended container.
func (a *Agent) ResumeContainer(ctx context.Context, id types.ContainerID) error {
	e, err := a.lookup(id)
	if err != nil {
		return err
	}
	if err := e.container.Resume(ctx); err != nil {
		return translateContainerErr(id, "resume", err)
	}
	return nil
}

// BindMount bind-mounts hostPath into the container rootfs at
// containerPath, outside of any gateway-driven configuration.
func (a *Agent) BindMount(id types.ContainerID, hostPath, containerPath string, readOnly bool) error {
	e, err := a.lookup(id)
	if err != nil {
		return err
	}
	if err := e.container.BindMount(hostPath, containerPath, readOnly); err != nil {
		return translateContainerErr(id, "bindMount", err)
	}
	return nil
}

// SetCapabilities resolves each requested capability name into
// gateway configuration fragments, appends the agent's default
// capabilities, and applies the combined set. An empty list is a
// no-op (logged, not an error); an unknown name fails the whole call
// before any gateway is touched.
func (a *Agent) SetCapabilities(ctx context.Context, id types.ContainerID, names []types.CapabilityName) error {
	e, err := a.lookup(id)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		a.log.Warn().Int32("container", int32(id)).Msg("setCapabilities called with an empty capability list")
		return nil
	}

	var fragments []types.GatewayConfigFragment
	for _, name := range names {
		frs, rerr := a.capStore.Resolve(name)
		if rerr != nil {
			metrics.CapabilityResolutionsTotal.WithLabelValues(string(name), "unknown").Inc()
			return &GatewayConfigError{ID: id, Err: rerr}
		}
		metrics.CapabilityResolutionsTotal.WithLabelValues(string(name), "resolved").Inc()
		fragments = append(fragments, frs...)
	}
	fragments = append(fragments, a.defaultCapabilities...)

	if err := e.gateways.apply(ctx, id, e.container, fragments); err != nil {
		return err
	}
	e.container.MarkConfigured()
	return nil
}

// ListCapabilities enumerates every capability name the configured
// store knows how to resolve.
func (a *Agent) ListCapabilities() ([]types.CapabilityName, error) {
	names, err := a.capStore.List()
	if err != nil {
		return nil, &InternalError{Op: "listCapabilities", Err: err}
	}
	return names, nil
}

// Execute runs cmdline inside the container, redirecting stdout and
// stderr to outputFilePath when non-empty. On a container's first
// Execute call, the agent's default capabilities are applied first
// (spec §4.4 "everConfigured") so a container that never called
// SetCapabilities still gets its baseline gateways; a failure there
// aborts the call without starting the job. listener, if non-nil, is
// invoked exactly once with the process's termination event.
func (a *Agent) Execute(ctx context.Context, id types.ContainerID, cmdline, workingDir, outputFilePath string, env types.EnvMap, listener job.ExitListener) (int, error) {
	reqID := uuid.NewString()
	a.log.Debug().Str("request_id", reqID).Int32("container", int32(id)).Str("cmdline", cmdline).Msg("execute requested")

	e, err := a.lookup(id)
	if err != nil {
		return 0, err
	}

	if !e.container.EverConfigured() {
		if err := e.gateways.apply(ctx, id, e.container, a.defaultCapabilities); err != nil {
			return 0, err
		}
		e.container.MarkConfigured()
	}

	cj := job.NewCommandJob(e.container, a.reactor, cmdline)
	cj.SetWorkingDir(workingDir)
	cj.SetEnv(env)
	if outputFilePath != "" {
		if err := cj.SetOutputFile(outputFilePath); err != nil {
			return 0, &InternalError{Op: "execute", Err: err}
		}
	}
	if listener != nil {
		cj.OnExit(listener)
	}

	if err := cj.Start(ctx); err != nil {
		return 0, translateContainerErr(id, "execute", err)
	}
	return cj.Pid(), nil
}
