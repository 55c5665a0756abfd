// Package intr implements the simulated interrupt stub/dispatcher and the
// interrupt manager: a fixed vector table, dispatch
// from a raised vector into the installed Handler, and the allocation-free
// fatal-exception panic path.
//
// Because this is a hosted Go module rather than bare-metal assembly, the
// "stub" that would swap stack pointers and execute iret/eret is replaced
// by Loop, a simulated per-CPU execution engine: one goroutine per
// registered thread, at most one of them running per CPU, parked threads
// blocked on their own resume channel, the stack-
// pointer swap replaced by a channel handoff. Loop is exercised mainly by
// cmd/simkernel; Manager's vector table and panic path are deterministic
// and fully unit-tested on their own.
package intr
