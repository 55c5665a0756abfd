package sched

import "errors"

// Sentinel errors for the scheduler manager's facade. Every other misuse
// is a programmer error (scheduler used before init, an
// invalid CPU id reaching an internal facade call, waking a Dead thread)
// surfaces as an explicit, unrecovered panic instead — these two are the
// only sentinels a well-behaved caller is expected to check for (besides
// the wrapped allocator error CreateThread can return), since both
// can arise from ordinary runtime conditions (a timer IRQ racing Enable, or
// a device wired to the wrong CPU count) rather than a coding mistake.
var (
	// ErrUnknownCPU is returned by OnTimerInterrupt when the IRQ source
	// names a CPU id outside [0, CPUCount).
	ErrUnknownCPU = errors.New("sched: unknown CPU id")
	// ErrSchedulerDisabled is returned by OnTimerInterrupt before Enable
	// has been called; this is a silent no-op, not a
	// panic, since ticks can legitimately arrive during boot.
	ErrSchedulerDisabled = errors.New("sched: scheduler not enabled")
)
