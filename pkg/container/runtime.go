package container

import (
	"context"
	"fmt"
	"os/exec"
	goruntime "runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/containerd/cgroups"
	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// DefaultNamespace is the containerd namespace the agent's containers
// are created in, isolating them from any other containerd tenant on
// the host.
const DefaultNamespace = "scagentd"

// AttachSpec carries the parameters common to attach and
// executeInContainer (spec §4.2).
type AttachSpec struct {
	Env        types.EnvMap
	UID        uint32
	WorkingDir string
	Stdin      int
	Stdout     int
	Stderr     int
}

// Runtime is the collaborator a Container delegates its OS-level
// operations to. The production implementation drives containerd;
// tests substitute a fake that records calls.
type Runtime interface {
	Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error
	Start(ctx context.Context, id types.ContainerID) (pid int, err error)
	Stop(ctx context.Context, id types.ContainerID) error
	Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error
	Suspend(ctx context.Context, id types.ContainerID) error
	Resume(ctx context.Context, id types.ContainerID) error
	SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error
	Attach(ctx context.Context, id types.ContainerID, spec AttachSpec, cmdline string) (pid int, err error)
	Execute(ctx context.Context, id types.ContainerID, spec AttachSpec, fn func() int, onExit func(exitCode int)) (pid int, err error)
	InitPid(id types.ContainerID) (pid int, ok bool)
}

// ContainerdRuntime drives containers through containerd, grounded on
// the teacher's pkg/runtime containerd client but generalized to the
// supervisor's fuller operation set (suspend/resume, cgroup items,
// attach/exec by fork rather than image pull and run).
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string

	pids map[types.ContainerID]int
}

// NewContainerdRuntime connects to the containerd socket at
// socketPath, or the well-known default if empty.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("container: connect to containerd: %w", err)
	}
	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
		pids:      make(map[types.ContainerID]int),
	}, nil
}

func (r *ContainerdRuntime) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *ContainerdRuntime) ctrID(id types.ContainerID) string {
	return "sc-" + strconv.Itoa(int(id))
}

func (r *ContainerdRuntime) withNS(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// Create materializes a bare rootfs bundle for the container at
// rootfs, applying the configuration snapshot's resource shape. The
// supervisor does not pull images: rootfs is expected to already
// contain a template extracted by the agent's containerfs layer.
func (r *ContainerdRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	ctx = r.withNS(ctx)

	opts := []oci.SpecOpts{
		oci.WithRootFSPath(rootfs),
		oci.WithDefaultPathEnv,
	}

	_, err := r.client.NewContainer(
		ctx,
		r.ctrID(id),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	return nil
}

// Start creates and starts the container's init task.
func (r *ContainerdRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	ctx = r.withNS(ctx)

	ctr, err := r.client.LoadContainer(ctx, r.ctrID(id))
	if err != nil {
		return 0, fmt.Errorf("load container: %w", err)
	}

	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return 0, fmt.Errorf("start task: %w", err)
	}

	pid := int(task.Pid())
	r.pids[id] = pid
	return pid, nil
}

// Stop issues a best-effort SIGTERM to the init task. Failure to find
// a task (container already stopped) is not an error.
func (r *ContainerdRuntime) Stop(ctx context.Context, id types.ContainerID) error {
	ctx = r.withNS(ctx)

	ctr, err := r.client.LoadContainer(ctx, r.ctrID(id))
	if err != nil {
		return nil
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil
	}
	if err := task.Kill(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Destroy stops (graceful then forced) and removes the container and
// its task within timeout.
func (r *ContainerdRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	ctx = r.withNS(ctx)

	ctr, err := r.client.LoadContainer(ctx, r.ctrID(id))
	if err != nil {
		return nil // already gone
	}

	if task, terr := ctr.Task(ctx, nil); terr == nil {
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
			return fmt.Errorf("destroy: sigterm: %w", err)
		}
		statusC, err := task.Wait(stopCtx)
		if err != nil {
			return fmt.Errorf("destroy: wait: %w", err)
		}
		select {
		case <-statusC:
		case <-stopCtx.Done():
			if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
				return fmt.Errorf("destroy: sigkill: %w", err)
			}
		}
		if _, err := task.Delete(ctx); err != nil {
			return fmt.Errorf("destroy: delete task: %w", err)
		}
	}

	delete(r.pids, id)

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("destroy: delete container: %w", err)
	}
	return nil
}

// Suspend freezes the container's task.
func (r *ContainerdRuntime) Suspend(ctx context.Context, id types.ContainerID) error {
	ctx = r.withNS(ctx)

	ctr, err := r.client.LoadContainer(ctx, r.ctrID(id))
	if err != nil {
		return fmt.Errorf("suspend: load: %w", err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("suspend: task: %w", err)
	}
	if err := task.Pause(ctx); err != nil {
		return fmt.Errorf("suspend: pause: %w", err)
	}
	return nil
}

// Resume thaws a previously-suspended container's task.
func (r *ContainerdRuntime) Resume(ctx context.Context, id types.ContainerID) error {
	ctx = r.withNS(ctx)

	ctr, err := r.client.LoadContainer(ctx, r.ctrID(id))
	if err != nil {
		return fmt.Errorf("resume: load: %w", err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("resume: task: %w", err)
	}
	if err := task.Resume(ctx); err != nil {
		return fmt.Errorf("resume: resume: %w", err)
	}
	return nil
}

// SetCgroupItem applies a single cgroup limit to the container's task
// cgroup. Only a small, explicit set of subsystems is recognized;
// anything else fails per the "unknown items fail" rule.
func (r *ContainerdRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	pid, ok := r.pids[id]
	if !ok {
		return fmt.Errorf("setCgroupItem: container %d has no running task", id)
	}

	control, err := cgroups.Load(cgroups.V1, cgroups.PidPath(pid))
	if err != nil {
		return fmt.Errorf("setCgroupItem: load cgroup: %w", err)
	}

	switch subsystem {
	case "memory.limit_in_bytes":
		limit, perr := strconv.ParseInt(value, 10, 64)
		if perr != nil {
			return fmt.Errorf("setCgroupItem: %s: %w", subsystem, perr)
		}
		res := specs.LinuxResources{Memory: &specs.LinuxMemory{Limit: &limit}}
		return control.Update(&res)
	case "cpu.shares":
		shares, perr := strconv.ParseUint(value, 10, 64)
		if perr != nil {
			return fmt.Errorf("setCgroupItem: %s: %w", subsystem, perr)
		}
		res := specs.LinuxResources{CPU: &specs.LinuxCPU{Shares: &shares}}
		return control.Update(&res)
	case "cpu.cfs_quota_us":
		quota, perr := strconv.ParseInt(value, 10, 64)
		if perr != nil {
			return fmt.Errorf("setCgroupItem: %s: %w", subsystem, perr)
		}
		res := specs.LinuxResources{CPU: &specs.LinuxCPU{Quota: &quota}}
		return control.Update(&res)
	default:
		runtimeLog.Warn().Str("subsystem", subsystem).Msg("rejecting unknown cgroup item")
		return fmt.Errorf("setCgroupItem: unknown cgroup item %q", subsystem)
	}
}

// Attach forks cmdline inside the container's namespaces via nsenter,
// targeting the init task's pid, mirroring the teacher's nsenter-based
// network inspection but generalized to arbitrary command execution.
func (r *ContainerdRuntime) Attach(ctx context.Context, id types.ContainerID, spec AttachSpec, cmdline string) (int, error) {
	pid, ok := r.InitPid(id)
	if !ok {
		return 0, fmt.Errorf("attach: container %d has no running init process", id)
	}

	wd := spec.WorkingDir
	if wd == "" {
		wd = "/"
	}

	args := []string{"-t", strconv.Itoa(pid), "-m", "-u", "-i", "-n", "-p",
		"--wd=" + wd, "-S", strconv.Itoa(int(spec.UID)), "--", "/bin/sh", "-c", cmdline}
	cmd := exec.CommandContext(ctx, "nsenter", args...)
	cmd.Env = spec.Env.List()
	applyFDRedirect(cmd, spec)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("attach: %w", err)
	}
	return cmd.Process.Pid, nil
}

// Execute runs fn inside the container's namespaces. Because Go
// closures cannot cross exec(2), fn runs in a locked OS thread that
// has joined the container's mount/net/pid/ipc/uts namespaces via
// setns(2) against the init task's /proc/<pid>/ns entries; its return
// value becomes the synthetic exit code reported through onExit, as
// though it were a forked child's wait status.
func (r *ContainerdRuntime) Execute(ctx context.Context, id types.ContainerID, spec AttachSpec, fn func() int, onExit func(int)) (int, error) {
	pid, ok := r.InitPid(id)
	if !ok {
		return 0, fmt.Errorf("executeInContainer: container %d has no running init process", id)
	}

	go func() {
		goruntime.LockOSThread()
		defer goruntime.UnlockOSThread()

		if err := joinNamespaces(pid); err != nil {
			runtimeLog.Warn().Err(err).Int("pid", pid).Msg("failed to join container namespaces for executeInContainer")
			onExit(types.JobExitSentinel)
			return
		}
		if err := applyExecuteSpec(spec); err != nil {
			runtimeLog.Warn().Err(err).Int("pid", pid).Msg("failed to apply uid/working-dir for executeInContainer")
			onExit(types.JobExitSentinel)
			return
		}
		onExit(fn())
	}()

	// The pid reported to the caller mirrors the joined init pid:
	// fn runs in this process's own goroutine rather than as a
	// distinct forked child, so there is no separate OS pid for it.
	return pid, nil
}

func joinNamespaces(pid int) error {
	for _, ns := range []string{"mnt", "net", "pid", "ipc", "uts"} {
		fd, err := unix.Open(fmt.Sprintf("/proc/%d/ns/%s", pid, ns), unix.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("open ns %s: %w", ns, err)
		}
		err = unix.Setns(fd, 0)
		unix.Close(fd)
		if err != nil {
			return fmt.Errorf("setns %s: %w", ns, err)
		}
	}
	return nil
}

// applyExecuteSpec honors the part of an AttachSpec that can be
// applied safely to the current goroutine's locked OS thread after it
// has joined a container's namespaces: the uid change is issued as a
// raw setresuid(2) syscall, bypassing syscall.Setresuid's all-threads
// broadcast, so — like the setns(2) calls in joinNamespaces — it only
// takes effect on this thread. WorkingDir is
// applied via Chdir for parity with Attach's nsenter "--wd", though
// unlike credentials a process's cwd is not a per-thread attribute on
// Linux: concurrent Execute calls against different containers can
// race each other's Chdir. Stdin/Stdout/Stderr are not applied at
// all: redirecting them here would redirect the whole daemon
// process's stdio, since fn runs in-process rather than as a forked
// child the way Attach's command does.
func applyExecuteSpec(spec AttachSpec) error {
	if spec.WorkingDir != "" {
		if err := syscall.Chdir(spec.WorkingDir); err != nil {
			return fmt.Errorf("chdir %s: %w", spec.WorkingDir, err)
		}
	}
	if spec.UID != 0 {
		uid := uintptr(spec.UID)
		if _, _, errno := syscall.RawSyscall(syscall.SYS_SETRESUID, uid, uid, uid); errno != 0 {
			return fmt.Errorf("setresuid %d: %w", spec.UID, errno)
		}
	}
	return nil
}

func (r *ContainerdRuntime) InitPid(id types.ContainerID) (int, bool) {
	pid, ok := r.pids[id]
	return pid, ok
}

var runtimeLog = log.WithComponent("container-runtime")
