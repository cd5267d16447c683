package job

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// testRuntime is a minimal container.Runtime fake used only to drive
// CommandJob/FunctionJob through Start without a real containerd or OS
// process.
type testRuntime struct {
	mu        sync.Mutex
	nextPid   int
	attachPid int
}

func newTestRuntime() *testRuntime { return &testRuntime{nextPid: 5000} }

func (t *testRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	return nil
}
func (t *testRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextPid++
	return t.nextPid, nil
}
func (t *testRuntime) Stop(ctx context.Context, id types.ContainerID) error    { return nil }
func (t *testRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	return nil
}
func (t *testRuntime) Suspend(ctx context.Context, id types.ContainerID) error { return nil }
func (t *testRuntime) Resume(ctx context.Context, id types.ContainerID) error  { return nil }
func (t *testRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	return nil
}
func (t *testRuntime) Attach(ctx context.Context, id types.ContainerID, spec container.AttachSpec, cmdline string) (int, error) {
	// the test process's own pid: it exists, so the reactor keeps the
	// registration pending instead of reporting an immediate exit.
	return os.Getpid(), nil
}
func (t *testRuntime) Execute(ctx context.Context, id types.ContainerID, spec container.AttachSpec, fn func() int, onExit func(int)) (int, error) {
	t.mu.Lock()
	t.nextPid++
	pid := t.nextPid
	t.mu.Unlock()
	go onExit(fn())
	return pid, nil
}
func (t *testRuntime) InitPid(id types.ContainerID) (int, bool) { return 1, true }

func readyContainer(t *testing.T) *container.Container {
	t.Helper()
	ctx := context.Background()
	c := container.New(types.ContainerID(7), t.TempDir(), types.ContainerConfig{}, newTestRuntime())
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Create(ctx))
	_, err := c.Start(ctx)
	require.NoError(t, err)
	return c
}

func TestCommandJobRunsAndCompletes(t *testing.T) {
	c := readyContainer(t)
	reactor := notifier.New()
	reactor.Start()
	defer reactor.Stop()

	cj := NewCommandJob(c, reactor, "/bin/true")

	// the test runtime's Attach does not launch a real process, so
	// we drive completion by hand using the pid it assigns, simulating
	// the OS reaping it.
	require.NoError(t, cj.Start(context.Background()))
	assert.True(t, cj.IsRunning())

	// the fake runtime never forks a real OS process for Attach, so
	// simulate the reactor having observed this pid's exit directly.
	cj.finish(types.ProcessExitEvent{Pid: cj.Pid(), ExitCode: 0})

	assert.False(t, cj.IsRunning())
	assert.Equal(t, 0, cj.Wait())
}

func TestFunctionJobReturnsFnExitCode(t *testing.T) {
	c := readyContainer(t)
	reactor := notifier.New()
	reactor.Start()
	defer reactor.Stop()

	fj := NewFunctionJob(c, reactor, func() int { return 42 })
	require.NoError(t, fj.Start(context.Background()))

	assert.Equal(t, 42, fj.Wait())
	assert.False(t, fj.IsRunning())
}

func TestOnExitListenerFires(t *testing.T) {
	c := readyContainer(t)
	reactor := notifier.New()
	reactor.Start()
	defer reactor.Stop()

	fj := NewFunctionJob(c, reactor, func() int { return 7 })
	done := make(chan types.ProcessExitEvent, 1)
	fj.OnExit(func(ev types.ProcessExitEvent) { done <- ev })

	require.NoError(t, fj.Start(context.Background()))

	select {
	case ev := <-done:
		assert.Equal(t, 7, ev.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("listener did not fire")
	}
}
