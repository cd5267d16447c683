package notifier

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

// Callback is invoked exactly once with the exit event for a registered
// pid, in the reactor's execution context.
type Callback func(types.ProcessExitEvent)

// Reactor is the single-threaded process-exit notifier described in
// spec §4.1. A Reactor must be started with Start before Register is
// useful and stopped with Stop during daemon shutdown.
type Reactor struct {
	mu      sync.Mutex
	pending map[int]Callback

	stopCh chan struct{}
	doneCh chan struct{}

	log zerolog.Logger

	// idleBackoff bounds how long the run loop sleeps when no child
	// has exited yet (WNOHANG returned 0) or there are no children at
	// all (ECHILD) before retrying, to avoid a hot loop while idle.
	idleBackoff time.Duration
}

// New creates a Reactor. Call Start to begin dispatching.
func New() *Reactor {
	return &Reactor{
		pending:     make(map[int]Callback),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		log:         log.WithComponent("notifier"),
		idleBackoff: 200 * time.Millisecond,
	}
}

// Start begins the reactor's run loop in its own goroutine.
func (r *Reactor) Start() {
	go r.run()
}

// Stop signals the run loop to exit and waits for it to do so. Any
// callbacks still pending at Stop time are never invoked.
func (r *Reactor) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// Register schedules cb to run when pid terminates, replacing any
// previously registered callback for the same pid. If pid does not
// currently exist, cb is invoked immediately with a failure exit code.
func (r *Reactor) Register(pid int, cb Callback) {
	if !processExists(pid) {
		r.log.Warn().Int("pid", pid).Msg("registering exit callback for pid that no longer exists")
		cb(types.ProcessExitEvent{Pid: pid, ExitCode: types.JobExitSentinel})
		return
	}

	r.mu.Lock()
	r.pending[pid] = cb
	r.mu.Unlock()
}

// Cancel removes a pending registration; no callback fires for pid
// afterward, even if it later terminates.
func (r *Reactor) Cancel(pid int) {
	r.mu.Lock()
	delete(r.pending, pid)
	r.mu.Unlock()
}

func (r *Reactor) run() {
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch err {
		case nil:
			if pid > 0 {
				r.dispatch(pid, ws)
				break
			}
			// children exist but none has exited yet
			select {
			case <-time.After(r.idleBackoff):
			case <-r.stopCh:
				return
			}
		case unix.ECHILD:
			select {
			case <-time.After(r.idleBackoff):
			case <-r.stopCh:
				return
			}
		case unix.EINTR:
			// interrupted, retry immediately
		default:
			r.log.Warn().Err(err).Msg("wait4 failed")
			select {
			case <-time.After(r.idleBackoff):
			case <-r.stopCh:
				return
			}
		}
	}
}

func (r *Reactor) dispatch(pid int, ws unix.WaitStatus) {
	r.mu.Lock()
	cb, ok := r.pending[pid]
	if ok {
		delete(r.pending, pid)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	event := types.ProcessExitEvent{Pid: pid, ExitCode: decodeStatus(ws)}
	cb(event)
}

// decodeStatus maps a wait status to the spec's exit-code contract:
// normal exit returns its status, signal termination returns
// 128+signal so callers can keep comparing against zero for success.
func decodeStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return types.JobExitSentinel + int(ws.Signal())
	default:
		return types.JobExitSentinel
	}
}

func processExists(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
