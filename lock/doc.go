// Package lock provides the two primitives every other kernel package
// builds on: a non-reentrant test-and-set Spinlock, and a stackable
// interrupt-mask Scope.
//
// The invariant the rest of the kernel relies on: a CPU must
// hold a Scope from IRQMask.Enter — i.e. have interrupts masked — before acquiring a
// Spinlock that may also be touched from an IRQ handler on the same CPU.
// Nothing in this package enforces that by construction (there is no way to
// express "this lock is IRQ-shared" in the type system without a much
// heavier design); PerCPU (package sched) is the one place that acquires
// both together, in the correct order, and every doc comment on a locked
// field says so.
package lock
