package sched

import "sync/atomic"

// Metrics is a point-in-time snapshot of Manager's accounting counters,
// limited to what a preemptive scheduler can observe without touching a
// Policy's private extension state: ticks handled and switches actually
// performed.
type Metrics struct {
	TicksProcessed  uint64
	ContextSwitches uint64
}

// counters is Manager's live, concurrently-updated accounting state.
type counters struct {
	ticks    atomic.Uint64
	switches atomic.Uint64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		TicksProcessed:  c.ticks.Load(),
		ContextSwitches: c.switches.Load(),
	}
}
