package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// fakeRuntime is a minimal container.Runtime that never touches
// containerd or the OS, just enough to drive a Container through its
// lifecycle transitions for agent-level tests.
type fakeRuntime struct {
	mu      sync.Mutex
	nextPid int
	pids    map[types.ContainerID]int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{nextPid: 1000, pids: make(map[types.ContainerID]int)}
}

func (f *fakeRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	return nil
}

func (f *fakeRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPid++
	f.pids[id] = f.nextPid
	return f.nextPid, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id types.ContainerID) error { return nil }

func (f *fakeRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	f.mu.Lock()
	delete(f.pids, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Suspend(ctx context.Context, id types.ContainerID) error { return nil }
func (f *fakeRuntime) Resume(ctx context.Context, id types.ContainerID) error  { return nil }

func (f *fakeRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	return nil
}

func (f *fakeRuntime) Attach(ctx context.Context, id types.ContainerID, spec container.AttachSpec, cmdline string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPid++
	return f.nextPid, nil
}

func (f *fakeRuntime) Execute(ctx context.Context, id types.ContainerID, spec container.AttachSpec, fn func() int, onExit func(int)) (int, error) {
	f.mu.Lock()
	f.nextPid++
	pid := f.nextPid
	f.mu.Unlock()
	go onExit(fn())
	return pid, nil
}

func (f *fakeRuntime) InitPid(id types.ContainerID) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid, ok := f.pids[id]
	return pid, ok
}

func testAgent(t *testing.T) *Agent {
	t.Helper()
	cfg := config.Resolved{
		SharedMountsDir:     t.TempDir(),
		ShutdownGracePeriod: time.Second,
	}
	reactor := notifier.New()
	reactor.Start()
	t.Cleanup(reactor.Stop)

	return New(cfg, newFakeRuntime(), reactor, capability.NewMemoryStore(), nil)
}

func TestCreateContainerStartsAtZeroAndReusesIds(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id0, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, types.ContainerID(0), id0)

	id1, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, types.ContainerID(1), id1)

	require.NoError(t, a.DeleteContainer(ctx, id0))

	id2, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, id0, id2, "the freed id should be reused before the pool grows further")

	assert.ElementsMatch(t, []types.ContainerID{id1, id2}, a.ListContainers())
}

func TestInvalidIdBoundaries(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	_, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	err = a.SuspendContainer(ctx, -1)
	var invalidID *InvalidContainerIdError
	require.True(t, errors.As(err, &invalidID))

	err = a.SuspendContainer(ctx, types.ContainerID(int64(types.MaxContainerID)))
	require.True(t, errors.As(err, &invalidID))
}

func TestUnknownIdIsNoSuchContainer(t *testing.T) {
	a := testAgent(t)
	err := a.SuspendContainer(context.Background(), 42)
	var notFound *NoSuchContainerError
	assert.True(t, errors.As(err, &notFound))
}

func TestDoubleSuspendIsInvalidState(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	require.NoError(t, a.SuspendContainer(ctx, id))

	err = a.SuspendContainer(ctx, id)
	var stateErr *InvalidContainerStateError
	assert.True(t, errors.As(err, &stateErr))
}

func TestSuspendDestroyRemovesFromList(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	require.NoError(t, a.SuspendContainer(ctx, id))
	require.NoError(t, a.ShutdownContainer(ctx, id))

	assert.NotContains(t, a.ListContainers(), id)
}

func TestSetCapabilitiesUnknownGatewayIsConfigError(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	store := a.capStore.(*capability.MemoryStore)
	store.Define("bogus", []types.GatewayConfigFragment{
		{GatewayID: "does-not-exist", Config: []byte(`[{"x":1}]`)},
	})

	err = a.SetCapabilities(ctx, id, []types.CapabilityName{"bogus"})
	var cfgErr *GatewayConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSetCapabilitiesEmptyListIsNoop(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	assert.NoError(t, a.SetCapabilities(ctx, id, nil))
}

func TestSetCapabilitiesUnknownNameFailsBeforeAnyGateway(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	err = a.SetCapabilities(ctx, id, []types.CapabilityName{"never-defined"})
	require.Error(t, err)
	var cfgErr *GatewayConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestExecuteAppliesEnvGatewayAndRunsListener(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	id, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)

	a.defaultCapabilities = []types.GatewayConfigFragment{
		{GatewayID: "env", Config: []byte(`[{"name":"FOO","value":"bar"}]`)},
	}

	done := make(chan types.ProcessExitEvent, 1)
	pid, err := a.Execute(ctx, id, "/bin/true", "", "", nil, func(ev types.ProcessExitEvent) {
		done <- ev
	})
	require.NoError(t, err)
	assert.NotZero(t, pid)

	select {
	case ev := <-done:
		assert.Equal(t, pid, ev.Pid)
	case <-time.After(2 * time.Second):
		t.Fatal("exit listener never fired")
	}

	e, err := a.lookup(id)
	require.NoError(t, err)
	assert.True(t, e.container.EverConfigured())
	assert.Equal(t, "bar", e.container.Environment()["FOO"])
}

func TestPreloadServesBlankCreateContainerCallsFirst(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	require.NoError(t, a.Preload(ctx, 2))
	assert.Len(t, a.ListContainers(), 2)

	id0, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	id1, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ContainerID{0, 1}, []types.ContainerID{id0, id1}, "the preloaded ids should be handed out, not freshly allocated")

	_, ok := a.takePreloaded()
	assert.False(t, ok, "the pool should be empty once every preloaded container has been claimed")

	id2, err := a.CreateContainer(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, types.ContainerID(2), id2, "once the pool is drained, CreateContainer falls back to the normal path")
}

func TestCreateContainerWithDynamicOptionsSkipsPreloadPool(t *testing.T) {
	a := testAgent(t)
	ctx := context.Background()

	require.NoError(t, a.Preload(ctx, 1))

	id, err := a.CreateContainer(ctx, `[{"writeBufferEnabled":true}]`)
	require.NoError(t, err)
	assert.Equal(t, types.ContainerID(1), id, "a request carrying overrides must not be served from the default-config pool")

	_, ok := a.takePreloaded()
	assert.True(t, ok, "the untouched preloaded container should still be available")
}
