// Package sched is the scheduler manager: a process-wide facade around a
// fixed array of per-CPU state, a pluggable Policy,
// and the thread-operation facade that serializes every non-IRQ mutation of
// a Thread behind a scoped interrupt-disable plus the owning CPU's
// Spinlock. The preemptive tick path (OnTimerInterrupt /
// scheduleFromInterrupt) runs in simulated IRQ context instead, and must
// never acquire a PerCPU lock — see manager.go's doc comments for why.
//
// sched has no notion of goroutines, channels, or real hardware: it never
// spawns anything. Publishing the chosen thread to the execution engine is
// delegated to a Switcher collaborator — package intr's Loop satisfies it —
// so this package's own tests drive every scenario through direct API
// calls with a nil Switcher and assert on Manager/PerCPU/Thread state
// alone.
package sched
