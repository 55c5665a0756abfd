package sched

import (
	"github.com/cosmos-os/kernel/lock"
	"github.com/cosmos-os/kernel/thread"
)

// PerCPU is one CPU's scheduling state: the
// currently-running thread, the idle thread substituted when nothing else
// is runnable, and the installed Policy's opaque extension slot (its run
// queue and any other bookkeeping it needs). Every field below is mutated
// only under lock — either the facade's Spinlock+IRQMask pair for non-IRQ
// callers, or implicitly by virtue of running in IRQ context with
// interrupts masked for scheduleFromInterrupt.
type PerCPU struct {
	ID int

	lock lock.Spinlock
	irq  lock.IRQMask

	// Current is the thread presently occupying this CPU. Invariant:
	// Current.State == thread.Running whenever non-nil and the scheduler
	// is enabled.
	Current *thread.Thread
	// Idle is substituted by scheduleFromInterrupt whenever the Policy's
	// PickNext returns nil. Must be installed via Manager.SetupIdleThread
	// before Manager.Enable.
	Idle *thread.Thread

	// LastTickAt accumulates elapsed nanoseconds across every
	// OnTimerInterrupt call on this CPU; it only ever grows.
	LastTickAt uint64

	// Extension is owned by the installed Policy: populated in
	// InitializeCPU, cleared in ShutdownCPU.
	Extension any
}

func newPerCPU(id int) *PerCPU {
	return &PerCPU{ID: id}
}
