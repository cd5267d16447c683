package metrics

import (
	"time"

	"github.com/cuemby/warren/pkg/types"
)

// StateCounter is the one piece of *agent.Agent the collector needs —
// expressed as an interface, not a direct import, so pkg/container,
// pkg/gateway, pkg/job, and pkg/capability can each import pkg/metrics
// to record their own counters/histograms without pkg/metrics closing
// a cycle back through pkg/agent, which depends on all four.
type StateCounter interface {
	StateCounts() map[types.ContainerState]int
}

// Collector periodically refreshes the gauges that reflect current
// state rather than a single call's outcome — ContainersTotal can't be
// updated event-by-event the way a counter can, since containers also
// disappear.
type Collector struct {
	counter StateCounter
	stopCh  chan struct{}
}

// NewCollector wires a Collector to the state source it samples.
func NewCollector(c StateCounter) *Collector {
	return &Collector{counter: c, stopCh: make(chan struct{})}
}

// Start begins collecting on a fixed interval, collecting once
// immediately first.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ContainersTotal.Reset()
	for state, count := range c.counter.StateCounts() {
		ContainersTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}
