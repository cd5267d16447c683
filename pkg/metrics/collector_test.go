package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/agent"
	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

type fakeRuntime struct{ pid int }

func (f *fakeRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	return nil
}
func (f *fakeRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	f.pid++
	return f.pid, nil
}
func (f *fakeRuntime) Stop(ctx context.Context, id types.ContainerID) error    { return nil }
func (f *fakeRuntime) Suspend(ctx context.Context, id types.ContainerID) error { return nil }
func (f *fakeRuntime) Resume(ctx context.Context, id types.ContainerID) error  { return nil }
func (f *fakeRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	return nil
}
func (f *fakeRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	return nil
}
func (f *fakeRuntime) Attach(ctx context.Context, id types.ContainerID, spec container.AttachSpec, cmdline string) (int, error) {
	f.pid++
	return f.pid, nil
}
func (f *fakeRuntime) Execute(ctx context.Context, id types.ContainerID, spec container.AttachSpec, fn func() int, onExit func(int)) (int, error) {
	f.pid++
	return f.pid, nil
}
func (f *fakeRuntime) InitPid(id types.ContainerID) (int, bool) { return f.pid, true }

func TestCollectorUpdatesContainersTotal(t *testing.T) {
	reactor := notifier.New()
	reactor.Start()
	t.Cleanup(reactor.Stop)

	cfg := config.Resolved{SharedMountsDir: t.TempDir(), ShutdownGracePeriod: time.Second}
	a := agent.New(cfg, &fakeRuntime{}, reactor, capability.NewMemoryStore(), nil)

	ctx := context.Background()
	_, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	_, err = a.CreateContainer(ctx, "")
	require.NoError(t, err)

	c := NewCollector(a)
	c.collect()

	got := testutil.ToFloat64(ContainersTotal.WithLabelValues(string(types.ContainerReady)))
	require.Equal(t, float64(2), got)
}
