package thread

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/cosmos-os/kernel/alloc"
	"github.com/cosmos-os/kernel/arch"
)

// ID is a monotonically-assigned thread identity. Allocation is centralized
// by the caller (package sched, under the process-wide lock) so ids stay
// unique across CPUs.
type ID uint64

// Flags marks thread-wide properties the scheduler and policies consult.
// Bits above the three defined here are reserved for policy use.
type Flags uint32

const (
	// KernelThread marks a thread as belonging to the kernel proper (as
	// opposed to a future user-mode process, which this runtime does not
	// support).
	KernelThread Flags = 1 << iota
	// IdleThread marks the per-CPU thread run when nothing else is runnable.
	IdleThread
	// Pinned marks a thread that select_cpu must never migrate off its
	// declared CPU.
	Pinned
)

// Is reports whether all bits of f are set.
func (f Flags) Is(bit Flags) bool {
	return f&bit == bit
}

// defaultCodeSegment is the symbolic x86-64 code-segment selector used when
// synthesizing a new thread's context; ARM64 contexts ignore it.
const defaultCodeSegment = 0x08

// Thread is the scheduler's Thread Control Block.
type Thread struct { //nolint:govet
	ID    ID
	CPU   int
	State State
	Flags Flags

	stack     []byte
	StackBase uintptr
	StackSize uintptr

	// SavedSP is valid only when State != Running; it is stale (zero) while
	// the thread is Running.
	SavedSP uintptr
	Context arch.Context

	CreatedAt       uint64
	TotalRuntime    uint64
	LastScheduledAt uint64
	WakeUpAt        uint64

	// Extension is an opaque slot typed and owned by the installed Policy,
	// created in OnThreadCreate and cleared in OnThreadExit / reclamation.
	Extension any

	entry   func(arg uint64)
	arg     uint64
	started bool
}

// New allocates a stack via alc, synthesizes a fresh Context at its top so
// the thread's first restore resumes at entry(arg), and returns a Thread in
// state Created.
func New(id ID, a arch.Arch, alc alloc.Allocator, entry func(arg uint64), arg uint64, stackSize uintptr, cpu int, createdAt uint64) (*Thread, error) {
	if entry == nil {
		return nil, fmt.Errorf("thread: entry must not be nil")
	}

	stack, err := alc.Alloc(stackSize)
	if err != nil {
		return nil, fmt.Errorf("thread: allocate stack: %w", err)
	}

	base := uintptr(unsafe.Pointer(&stack[0]))
	entryAddr := reflect.ValueOf(entry).Pointer()

	ctx := arch.New(a)
	ctx.Initialize(entryAddr, defaultCodeSegment, arg, base+stackSize)

	return &Thread{
		ID:        id,
		CPU:       cpu,
		State:     Created,
		stack:     stack,
		StackBase: base,
		StackSize: stackSize,
		SavedSP:   ctx.StackPointer(),
		Context:   ctx,
		CreatedAt: createdAt,
		entry:     entry,
		arg:       arg,
	}, nil
}

// Entry returns the thread's entry function, for the simulated stub
// (package intr) to invoke on first dispatch.
func (t *Thread) Entry() func(uint64) { return t.entry }

// Arg returns the thread's first argument, for diagnostics and the
// simulated stub.
func (t *Thread) Arg() uint64 { return t.arg }

// invalidTransition panics with a message identifying the offending
// transition — an invariant violation is a programmer error, surfaced as
// an explicit, unrecovered panic.
func (t *Thread) invalidTransition(to State) {
	panic(fmt.Sprintf("thread: invalid transition %s -> %s (id=%d)", t.State, to, t.ID))
}

// MarkReady transitions Created, Running, or Blocked/Sleeping into Ready.
// Callers must hold the owning PerCPU lock.
func (t *Thread) MarkReady() {
	switch t.State {
	case Created, Running, Blocked, Sleeping:
	default:
		t.invalidTransition(Ready)
	}
	t.State = Ready
	t.SavedSP = t.Context.StackPointer()
}

// MarkRunning transitions Ready into Running, records the schedule
// timestamp, and reports whether this is the thread's first run (so the
// caller can route the stub through the new-thread restore path instead of
// the ordinary one).
func (t *Thread) MarkRunning(scheduledAt uint64) (isNew bool) {
	if t.State != Ready {
		t.invalidTransition(Running)
	}
	isNew = !t.started
	t.started = true
	t.State = Running
	t.LastScheduledAt = scheduledAt
	t.SavedSP = 0
	return isNew
}

// MarkBlocked transitions Running into Blocked (voluntary wait).
func (t *Thread) MarkBlocked() {
	if t.State != Running {
		t.invalidTransition(Blocked)
	}
	t.State = Blocked
	t.SavedSP = t.Context.StackPointer()
}

// MarkSleeping transitions Running into Sleeping with a wake-up deadline.
func (t *Thread) MarkSleeping(wakeAt uint64) {
	if t.State != Running {
		t.invalidTransition(Sleeping)
	}
	t.State = Sleeping
	t.WakeUpAt = wakeAt
	t.SavedSP = t.Context.StackPointer()
}

// MarkExited transitions any non-terminal state into Dead. Dead is
// terminal: no field may be read thereafter except the stack region, for
// reclamation by Registry.
func (t *Thread) MarkExited() {
	switch t.State {
	case Created, Ready, Running, Blocked, Sleeping:
	default:
		t.invalidTransition(Dead)
	}
	t.State = Dead
	t.SavedSP = 0
}

// AddRuntime accumulates the nanoseconds this thread has spent as its
// CPU's current thread, as passed by Manager.OnTimerInterrupt on each tick.
func (t *Thread) AddRuntime(elapsedNS uint64) {
	t.TotalRuntime += elapsedNS
}
