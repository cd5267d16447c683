package job

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/notifier"
)

// CommandJob runs a fixed command line inside a container via
// container.Attach.
type CommandJob struct {
	base
	cmdline string
}

// NewCommandJob constructs a CommandJob bound to c, not yet started.
func NewCommandJob(c *container.Container, reactor *notifier.Reactor, cmdline string) *CommandJob {
	return &CommandJob{base: newBase(c, reactor), cmdline: cmdline}
}

// Start attaches the command line into the container's namespaces and
// begins tracking its exit.
func (j *CommandJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return fmt.Errorf("job: command job already started")
	}
	j.mu.Unlock()

	pid, err := j.container.Attach(ctx, j.cmdline, j.spec())
	if err != nil {
		return err
	}
	j.registerExit(pid)
	return nil
}
