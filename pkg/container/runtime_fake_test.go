package container

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/types"
)

// fakeRuntime is an in-memory Runtime used by container_test.go. It
// never touches the real OS; suspend/resume/start can be made to fail
// on demand to exercise the INVALID trap-state transition.
type fakeRuntime struct {
	mu sync.Mutex

	created   map[types.ContainerID]bool
	pids      map[types.ContainerID]int
	nextPid   int
	failStart bool
	failSuspend bool
	failResume  bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		created: make(map[types.ContainerID]bool),
		pids:    make(map[types.ContainerID]int),
		nextPid: 1000,
	}
}

func (f *fakeRuntime) Create(ctx context.Context, id types.ContainerID, rootfs string, cfg types.ContainerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[id] = true
	return nil
}

func (f *fakeRuntime) Start(ctx context.Context, id types.ContainerID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return 0, errors.New("fake: start failed")
	}
	f.nextPid++
	f.pids[id] = f.nextPid
	return f.nextPid, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id types.ContainerID) error { return nil }

func (f *fakeRuntime) Destroy(ctx context.Context, id types.ContainerID, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.created, id)
	delete(f.pids, id)
	return nil
}

func (f *fakeRuntime) Suspend(ctx context.Context, id types.ContainerID) error {
	if f.failSuspend {
		return errors.New("fake: suspend failed")
	}
	return nil
}

func (f *fakeRuntime) Resume(ctx context.Context, id types.ContainerID) error {
	if f.failResume {
		return errors.New("fake: resume failed")
	}
	return nil
}

func (f *fakeRuntime) SetCgroupItem(ctx context.Context, id types.ContainerID, subsystem, value string) error {
	if subsystem == "" {
		return errors.New("fake: empty subsystem")
	}
	return nil
}

func (f *fakeRuntime) Attach(ctx context.Context, id types.ContainerID, spec AttachSpec, cmdline string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPid++
	return f.nextPid, nil
}

func (f *fakeRuntime) Execute(ctx context.Context, id types.ContainerID, spec AttachSpec, fn func() int, onExit func(int)) (int, error) {
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
