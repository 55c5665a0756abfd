package sched

import "github.com/cosmos-os/kernel/thread"

// Policy is the scheduler policy interface: a polymorphic
// capability set any concrete scheduling algorithm implements in full.
// Manager calls these hooks while holding whatever lock discipline each one
// requires (documented per method below); a Policy implementation must
// never itself acquire a PerCPU's lock — it always already holds it, or is
// running in the IRQ context that forbids acquiring it at all.
type Policy interface {
	// Name identifies the policy for diagnostics.
	Name() string

	// InitializeCPU and ShutdownCPU allocate and release the policy's
	// per-CPU extension slot (PerCPU.Extension). Called by
	// Manager.SetScheduler under the process-wide lock.
	InitializeCPU(cpu *PerCPU)
	ShutdownCPU(cpu *PerCPU)

	// OnThreadCreate through OnThreadYield are the thread lifecycle hooks
	// the facade in manager.go calls with the owning PerCPU's lock held.
	// OnThreadCreate owns allocating t.Extension; OnThreadExit owns
	// clearing it.
	OnThreadCreate(cpu *PerCPU, t *thread.Thread)
	OnThreadReady(cpu *PerCPU, t *thread.Thread)
	OnThreadBlocked(cpu *PerCPU, t *thread.Thread)
	OnThreadExit(cpu *PerCPU, t *thread.Thread)
	OnThreadYield(cpu *PerCPU, t *thread.Thread)

	// PickNext returns the next thread to run, or nil if cpu's run queue
	// is empty — Manager substitutes the idle thread in that case. Called
	// from IRQ context: must not block or allocate.
	PickNext(cpu *PerCPU) *thread.Thread

	// OnTick updates accounting for the thread that was running during
	// this tick and reports whether a reschedule is needed. current is
	// nil only if cpu has never run anything (should not happen once
	// Enable has been called). Called from IRQ context.
	OnTick(cpu *PerCPU, current *thread.Thread, elapsedNS uint64) (reschedule bool)

	// SelectCPU chooses placement for t on creation or wake.
	SelectCPU(t *thread.Thread, currentCPU, cpuCount int) int
	// OnThreadMigrate is informational, called after Manager.Migrate has
	// already updated t.CPU.
	OnThreadMigrate(t *thread.Thread, from, to int)
	// Balance is periodic and non-mandatory; a Policy may leave it empty.
	Balance(cpu *PerCPU, all []*PerCPU)

	// SetPriority and GetPriority have policy-defined semantics.
	SetPriority(t *thread.Thread, priority int)
	GetPriority(t *thread.Thread) int
}
