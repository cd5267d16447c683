package job

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/types"
)

// ExitListener is invoked once, after the job's own bookkeeping has
// run, with the process's termination event.
type ExitListener func(types.ProcessExitEvent)

// Job is the common surface CommandJob and FunctionJob both satisfy.
type Job interface {
	Start(ctx context.Context) error
	Pid() int
	IsRunning() bool
	Wait() int
	OnExit(ExitListener)
}

// base carries the state and reactor wiring shared by both job kinds.
type base struct {
	mu        sync.Mutex
	container *container.Container
	reactor   *notifier.Reactor

	// id correlates this job's log lines across its own lifetime and
	// against the reactor's, independent of the OS pid it is assigned
	// (which is only known once Start succeeds, and is reused by the
	// OS after the job exits).
	id  uuid.UUID
	log zerolog.Logger

	env        types.EnvMap
	workingDir string
	uid        uint32
	stdin      int
	stdout     int
	stderr     int
	outputFile *os.File

	pid       int
	running   bool
	started   bool
	exitCh    chan int
	listeners []ExitListener
}

func newBase(c *container.Container, reactor *notifier.Reactor) base {
	id := uuid.New()
	return base{
		container: c,
		reactor:   reactor,
		id:        id,
		log:       log.WithComponent("job").With().Str("job_id", id.String()).Logger(),
		stdin:     -1,
		stdout:    -1,
		stderr:    -1,
		exitCh:    make(chan int, 1),
	}
}

// SetEnv sets the job's per-call environment overrides.
func (b *base) SetEnv(env types.EnvMap) { b.env = env }

// SetWorkingDir sets the job's working directory; empty means "/".
func (b *base) SetWorkingDir(dir string) { b.workingDir = dir }

// SetUID sets the uid the job's process runs as; default is root (0).
func (b *base) SetUID(uid uint32) { b.uid = uid }

// SetStdio sets raw fd overrides; -1 means inherit.
func (b *base) SetStdio(stdin, stdout, stderr int) {
	b.stdin, b.stdout, b.stderr = stdin, stdout, stderr
}

// SetOutputFile redirects both stdout and stderr to path, opening and
// truncating it here (spec §4.5 CommandJob rule, reused by FunctionJob for
// symmetry since both attach the same way).
func (b *base) SetOutputFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("job: open output file %q: %w", path, err)
	}
	b.outputFile = f
	return nil
}

func (b *base) spec() container.AttachSpec {
	stdout, stderr := b.stdout, b.stderr
	if b.outputFile != nil {
		fd := int(b.outputFile.Fd())
		stdout, stderr = fd, fd
	}
	return container.AttachSpec{
		Env:        b.env,
		UID:        b.uid,
		WorkingDir: b.workingDir,
		Stdin:      b.stdin,
		Stdout:     stdout,
		Stderr:     stderr,
	}
}

// OnExit registers an additional listener invoked when the job's
// process terminates. Safe to call before or after Start.
func (b *base) OnExit(fn ExitListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// registerExit marks the job started at pid and asks the reactor to
// report its OS-level termination, for jobs that attach a real
// forked/execed process (CommandJob).
func (b *base) registerExit(pid int) {
	b.mu.Lock()
	b.pid = pid
	b.running = true
	b.started = true
	b.mu.Unlock()

	b.log.Debug().Int("pid", pid).Msg("job started")
	metrics.JobsStartedTotal.Inc()
	b.reactor.Register(pid, b.finish)
}

// markStarted records pid as started without registering with the
// reactor, for jobs whose completion is reported through a direct
// callback instead (FunctionJob).
func (b *base) markStarted(pid int) {
	b.mu.Lock()
	b.pid = pid
	b.running = true
	b.started = true
	b.mu.Unlock()

	b.log.Debug().Int("pid", pid).Msg("job started")
	metrics.JobsStartedTotal.Inc()
}

func (b *base) finish(ev types.ProcessExitEvent) {
	b.mu.Lock()
	b.running = false
	listeners := append([]ExitListener(nil), b.listeners...)
	outputFile := b.outputFile
	b.mu.Unlock()

	if outputFile != nil {
		_ = outputFile.Close()
	}

	b.log.Debug().Int("pid", ev.Pid).Int("exit_code", ev.ExitCode).Msg("job finished")
	metrics.JobExitCodesTotal.WithLabelValues(strconv.Itoa(ev.ExitCode)).Inc()

	select {
	case b.exitCh <- ev.ExitCode:
	default:
	}

	for _, l := range listeners {
		l(ev)
	}
}

// Pid returns the job's host-visible pid, valid once Start has
// succeeded.
func (b *base) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pid
}

// IsRunning reports whether the job's process is believed to still be
// alive; true from a successful Start until the exit callback fires.
func (b *base) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Wait blocks the caller until this job's process terminates, then
// returns its exit code. Safe to call more than once or concurrently;
// all callers after the first observe the same terminal value via a
// closed-over buffered channel re-read, so Wait caches the result.
func (b *base) Wait() int {
	code := <-b.exitCh
	// make the value available to any further Wait callers
	b.exitCh <- code
	return code
}
