package rpc

import (
	"context"
	"sync"

	"github.com/cuemby/warren/pkg/types"
)

// processEvents fans a pid's terminal ProcessExitEvent out to whichever
// WatchProcessState call asks for it, in either order: Execute's own
// exit listener may publish before the client opens the watch stream,
// or after. Each pid gets a 1-buffered channel so publish never blocks
// on a subscriber that hasn't arrived yet.
type processEvents struct {
	mu   sync.Mutex
	live map[int]chan types.ProcessExitEvent
}

func newProcessEvents() *processEvents {
	return &processEvents{live: make(map[int]chan types.ProcessExitEvent)}
}

func (p *processEvents) channel(pid int) chan types.ProcessExitEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.live[pid]
	if !ok {
		ch = make(chan types.ProcessExitEvent, 1)
		p.live[pid] = ch
	}
	return ch
}

// publish is the exit listener handed to agent.Execute.
func (p *processEvents) publish(ev types.ProcessExitEvent) {
	ch := p.channel(ev.Pid)
	select {
	case ch <- ev:
	default:
	}
}

// wait blocks until pid's terminal event arrives or ctx is cancelled,
// then forgets the channel — WatchProcessState is a one-shot watch, not
// a durable subscription.
func (p *processEvents) wait(ctx context.Context, pid int) (types.ProcessExitEvent, error) {
	ch := p.channel(pid)
	defer func() {
		p.mu.Lock()
		delete(p.live, pid)
		p.mu.Unlock()
	}()

	select {
	case ev := <-ch:
		return ev, nil
	case <-ctx.Done():
		return types.ProcessExitEvent{}, ctx.Err()
	}
}
