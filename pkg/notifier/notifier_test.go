package notifier

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/types"
)

func TestReactorDispatchesExitOnce(t *testing.T) {
	r := New()
	r.Start()
	defer r.Stop()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	done := make(chan int, 2)
	r.Register(cmd.Process.Pid, func(ev types.ProcessExitEvent) {
		done <- ev.ExitCode
	})

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exit callback")
	}

	select {
	case <-done:
		t.Fatal("callback fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReactorCancelSuppressesCallback(t *testing.T) {
	r := New()
	r.Start()
	defer r.Stop()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	fired := make(chan struct{}, 1)
	r.Register(cmd.Process.Pid, func(types.ProcessExitEvent) { fired <- struct{}{} })
	r.Cancel(cmd.Process.Pid)

	select {
	case <-fired:
		t.Fatal("callback fired after cancel")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestReactorImmediateCallbackForDeadPid(t *testing.T) {
	r := New()
	r.Start()
	defer r.Stop()

	done := make(chan struct{}, 1)
	// a pid that is exceedingly unlikely to exist
	r.Register(1<<30, func(types.ProcessExitEvent) { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected immediate callback for nonexistent pid")
	}
}
