package rpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/warren/pkg/agent"
	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// fakeRuntime is the same minimal container.Runtime stand-in pkg/agent
// tests with, duplicated here rather than exported from pkg/agent —
// this package only needs enough to build a *agent.Agent end to end.
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

func testService(t *testing.T) *service {
	t.Helper()
	cfg := config.Resolved{
		SharedMountsDir:     t.TempDir(),
		ShutdownGracePeriod: time.Second,
	}
	reactor := notifier.New()
	reactor.Start()
	t.Cleanup(reactor.Stop)

	a := agent.New(cfg, newFakeRuntime(), reactor, capability.NewMemoryStore(), nil)
	return newService(a)
}

func TestServiceCreateListDestroy(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	created, err := s.CreateContainer(ctx, &CreateContainerRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.ContainerID(0), created.ContainerID)

	listed, err := s.List(ctx, &ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, []types.ContainerID{0}, listed.ContainerIDs)

	_, err = s.Destroy(ctx, &DestroyRequest{ContainerID: created.ContainerID})
	require.NoError(t, err)

	listed, err = s.List(ctx, &ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.ContainerIDs)
}

func TestServiceUnknownContainerIsNotFound(t *testing.T) {
	s := testService(t)
	_, err := s.Suspend(context.Background(), &SuspendRequest{ContainerID: 7})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceInvalidIdIsInvalidArgument(t *testing.T) {
	s := testService(t)
	_, err := s.Suspend(context.Background(), &SuspendRequest{ContainerID: -1})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServiceExecuteThenWatchProcessStateDeliversExit(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	created, err := s.CreateContainer(ctx, &CreateContainerRequest{})
	require.NoError(t, err)

	exec, err := s.Execute(ctx, &ExecuteRequest{ContainerID: created.ContainerID, CommandLine: "/bin/true"})
	require.NoError(t, err)
	require.NotZero(t, exec.Pid)

	ev, err := s.events.wait(ctx, exec.Pid)
	require.NoError(t, err)
	assert.Equal(t, exec.Pid, ev.Pid)
}

func TestServiceSetCapabilitiesUnknownNameIsInvalidArgument(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	created, err := s.CreateContainer(ctx, &CreateContainerRequest{})
	require.NoError(t, err)

	_, err = s.SetCapabilities(ctx, &SetCapabilitiesRequest{
		ContainerID: created.ContainerID,
		Names:       []types.CapabilityName{"never-defined"},
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
