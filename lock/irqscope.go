package lock

import "sync/atomic"

// IRQMask is a per-CPU, stackable interrupt-disable counter. It stands in
// for the real CLI/STI (or DAIFSet/DAIFClr) pair a bare-metal stub would
// execute. The depth is bookkeeping only: nothing in package intr or
// package sched consults Enabled, so simulated timer ticks are delivered
// whatever the depth is.
//
// Nested Enter calls behave as a counter: only the outermost Exit brings
// the depth back to zero, where Enabled reports true again.
type IRQMask struct {
	depth atomic.Int32
}

// Enabled reports whether this CPU currently accepts interrupt delivery.
func (m *IRQMask) Enabled() bool {
	return m.depth.Load() == 0
}

// Enter masks interrupts on this CPU, returning a Scope whose Exit restores
// the previous state. Callers should `defer scope.Exit()` immediately.
func (m *IRQMask) Enter() Scope {
	m.depth.Add(1)
	return Scope{mask: m}
}

// Scope is the guard returned by IRQMask.Enter.
type Scope struct {
	mask *IRQMask
}

// Exit ends this masked region. Calling Exit more times than Enter was
// called is a programmer error — the counter would go negative and every
// subsequent Exit would leave interrupts permanently masked on this CPU, so
// it panics immediately instead of limping on.
func (s Scope) Exit() {
	if s.mask == nil {
		return
	}
	if s.mask.depth.Add(-1) < 0 {
		panic("lock: IRQScope exited more times than entered")
	}
}
