package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/types"
)

// fakeRuntime is a minimal container.Runtime stand-in so gateway
// tests can drive a real *container.Container without a containerd
// daemon. MountDevice runs its nsenter command directly in Container
// rather than through the runtime, so these tests only assert gateway-side
// bookkeeping (pending/active maps, config validation), not that the
// underlying nsenter commands ran.
type fakeRuntime struct {
	pid int
}

func (f *fakeRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	return nil
}
func (f *fakeRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	f.pid = 1
	return f.pid, nil
}
func (f *fakeRuntime) Stop(ctx context.Context, id types.ContainerID) error { return nil }
func (f *fakeRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	return nil
}
func (f *fakeRuntime) Suspend(ctx context.Context, id types.ContainerID) error { return nil }
func (f *fakeRuntime) Resume(ctx context.Context, id types.ContainerID) error  { return nil }
func (f *fakeRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	return nil
}
func (f *fakeRuntime) Attach(ctx context.Context, id types.ContainerID, spec container.AttachSpec, cmdline string) (int, error) {
	return 2, nil
}
func (f *fakeRuntime) Execute(ctx context.Context, id types.ContainerID, spec container.AttachSpec, fn func() int, onExit func(int)) (int, error) {
	go onExit(fn())
	return f.pid, nil
}
func (f *fakeRuntime) InitPid(id types.ContainerID) (int, bool) {
	if f.pid == 0 {
		return 0, false
	}
	return f.pid, true
}

// readyContainer returns a Container in the READY state backed by a
// fakeRuntime, suitable for exercising gateway activation logic that
// only needs container bookkeeping (config, environment) rather than
// real namespace operations.
func readyContainer(t *testing.T) *container.Container {
	t.Helper()
	rt := &fakeRuntime{}
	c := container.New(1, t.TempDir(), types.ContainerConfig{}, rt)
	require := func(err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require(c.Initialize())
	require(c.Create(context.Background()))
	_, err := c.Start(context.Background())
	require(err)
	return c
}
