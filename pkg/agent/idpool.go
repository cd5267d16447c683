package agent

import (
	"sync"

	"github.com/cuemby/warren/pkg/types"
)

// idPool is the small LIFO id pool described in spec §4.4: pop
// returns the tail value; if only one value k remains, pop returns k
// and replaces it with k+1 so the pool never empties and ids grow
// monotonically once reuse is exhausted. The pool starts as [0].
type idPool struct {
	mu    sync.Mutex
	stack []types.ContainerID
}

func newIDPool() *idPool {
	return &idPool{stack: []types.ContainerID{0}}
}

// Pop allocates the next container id.
func (p *idPool) Pop() types.ContainerID {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.stack)
	if n > 1 {
		id := p.stack[n-1]
		p.stack = p.stack[:n-1]
		return id
	}
	id := p.stack[0]
	p.stack[0] = id + 1
	return id
}

// Push returns id to the pool for reuse by a future Pop.
func (p *idPool) Push(id types.ContainerID) {
	p.mu.Lock()
	p.stack = append(p.stack, id)
	p.mu.Unlock()
}

// Reserve advances the pool's high-water mark past maxID, so ids up to
// and including maxID are never handed out by a subsequent Pop. Meant
// to be called once, right after construction and before the pool has
// served any request, to replay a persisted registry's high-water mark
// across a daemon restart.
func (p *idPool) Reserve(maxID types.ContainerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stack) == 1 && p.stack[0] <= maxID {
		p.stack[0] = maxID + 1
	}
}
