package job

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// FunctionJob runs a caller-provided function inside a container's
// joined namespaces via container.ExecuteInContainer. The function's
// integer return becomes the job's synthetic exit code.
type FunctionJob struct {
	base
	fn func() int
}

// NewFunctionJob constructs a FunctionJob bound to c, not yet started.
func NewFunctionJob(c *container.Container, reactor *notifier.Reactor, fn func() int) *FunctionJob {
	return &FunctionJob{base: newBase(c, reactor), fn: fn}
}

// Start joins the container's namespaces and runs fn.
func (j *FunctionJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return fmt.Errorf("job: function job already started")
	}
	j.mu.Unlock()

	pid, err := j.container.ExecuteInContainer(ctx, j.fn, j.spec(), func(code int) {
		j.finish(types.ProcessExitEvent{Pid: j.Pid(), ExitCode: code})
	})
	if err != nil {
		return err
	}
	j.markStarted(pid)
	return nil
}
