package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosmos-os/kernel/alloc"
	"github.com/cosmos-os/kernel/arch"
	"github.com/cosmos-os/kernel/klog"
	"github.com/cosmos-os/kernel/thread"
)

// Switcher is the collaborator that performs the actual stack-pointer swap
// once scheduleFromInterrupt has decided which thread runs next. Package
// intr's Loop satisfies this; Manager never calls it with WithSwitcher
// unset, which is how this package's own tests exercise every facade and
// tick-path behavior without spinning a single goroutine.
type Switcher interface {
	Switch(cpuID int, next *thread.Thread, isNew bool)
}

// Manager is the scheduler manager: the process-wide facade
// around a fixed array of PerCPU state, the installed Policy, and the
// thread-operation facade that serializes every non-IRQ mutation of a
// Thread behind a scoped interrupt-disable plus the owning CPU's Spinlock.
type Manager struct {
	opts options

	a   arch.Arch
	alc alloc.Allocator

	// globalLock is the process-wide scheduler lock: acquired only for
	// Initialize, SetScheduler, SetupIdleThread/Enable bookkeeping, and
	// centralized thread-id allocation. No per-thread facade operation
	// depends on it.
	globalLock sync.Mutex
	policy     Policy
	cpus       []*PerCPU
	idleSet    []bool
	enabled    atomic.Bool
	nextID     uint64

	registry *thread.Registry
	counters counters
}

// NewManager returns a Manager with no CPUs and no Policy installed. Call
// Initialize, then SetScheduler, then SetupIdleThread for every CPU, then
// Enable, in that order, before any thread operation.
func NewManager(a arch.Arch, alc alloc.Allocator, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Manager{
		opts:     o,
		a:        a,
		alc:      alc,
		registry: thread.NewRegistry(alc),
	}
}

// Initialize allocates the per-CPU array. Calling it twice is a programmer
// error.
func (m *Manager) Initialize(cpuCount int) {
	m.globalLock.Lock()
	defer m.globalLock.Unlock()
	if m.cpus != nil {
		panic("sched: Initialize called more than once")
	}
	if cpuCount <= 0 {
		panic("sched: Initialize requires at least one CPU")
	}
	m.cpus = make([]*PerCPU, cpuCount)
	m.idleSet = make([]bool, cpuCount)
	for i := range m.cpus {
		m.cpus[i] = newPerCPU(i)
	}
	m.logBoot("scheduler initialized", klog.Int("cpus", cpuCount))
}

// SetScheduler installs p as the active Policy, under the process-wide
// lock. If a policy was already installed, every CPU is shut down under
// the old one and initialized under the new one. Calling it again with
// the Policy already installed returns without touching any PerCPU, so
// every PerCPU's observable state is unchanged.
func (m *Manager) SetScheduler(p Policy) {
	if p == nil {
		panic("sched: SetScheduler requires a non-nil Policy")
	}
	m.globalLock.Lock()
	defer m.globalLock.Unlock()
	if m.cpus == nil {
		panic("sched: SetScheduler called before Initialize")
	}
	if m.policy == p {
		return
	}
	if m.policy != nil {
		for _, cpu := range m.cpus {
			m.policy.ShutdownCPU(cpu)
		}
	}
	m.policy = p
	for _, cpu := range m.cpus {
		p.InitializeCPU(cpu)
	}
	m.logBoot("policy installed", klog.Str("policy", p.Name()))
}

// SetupIdleThread installs idle as cpuID's idle thread and its initial
// current thread. Must run strictly before Enable, so no timer tick can
// ever observe a nil Current.
func (m *Manager) SetupIdleThread(cpuID int, idle *thread.Thread) {
	if idle == nil {
		panic("sched: SetupIdleThread requires a non-nil thread")
	}
	cpu := m.cpu(cpuID)
	idle.Flags |= thread.IdleThread
	idle.CPU = cpuID
	idle.MarkReady()
	idle.MarkRunning(m.wallClockTicks())
	cpu.Current = idle
	cpu.Idle = idle

	m.globalLock.Lock()
	m.idleSet[cpuID] = true
	m.globalLock.Unlock()
}

// Enable allows timer ticks to preempt. Panics if any CPU's idle thread
// has not been installed yet.
func (m *Manager) Enable() {
	m.globalLock.Lock()
	defer m.globalLock.Unlock()
	if m.policy == nil {
		panic("sched: Enable called before SetScheduler")
	}
	for i, set := range m.idleSet {
		if !set {
			panic(fmt.Sprintf("sched: Enable called before SetupIdleThread for CPU %d", i))
		}
	}
	m.enabled.Store(true)
	m.logBoot("scheduler enabled")
}

// Enabled reports whether timer ticks are currently allowed to preempt.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// CPUCount reports how many CPUs Initialize allocated.
func (m *Manager) CPUCount() int { return len(m.cpus) }

// CPU returns the PerCPU state for cpuID, for tests and diagnostics that
// need to inspect Current/Idle/Extension directly.
func (m *Manager) CPU(cpuID int) *PerCPU { return m.cpu(cpuID) }

// Metrics returns a snapshot of the scheduler's accounting counters.
func (m *Manager) Metrics() Metrics { return m.counters.snapshot() }

func (m *Manager) cpu(id int) *PerCPU {
	if id < 0 || id >= len(m.cpus) {
		panic(fmt.Sprintf("sched: unknown CPU id %d", id))
	}
	return m.cpus[id]
}

func (m *Manager) allocThreadID() thread.ID {
	m.globalLock.Lock()
	defer m.globalLock.Unlock()
	m.nextID++
	return thread.ID(m.nextID)
}

func (m *Manager) wallClockTicks() uint64 { return uint64(time.Now().UnixNano()) }

func (m *Manager) logBoot(msg string, fields ...klog.Field) {
	if m.opts.log != nil {
		m.opts.log.Boot(msg, fields...)
	}
}

// CreateThread allocates a new kernel thread and runs the facade's
// lock-acquire/policy-hook/release sequence. Thread id allocation
// is centralized under globalLock, never per-CPU, so two CPUs can never
// hand out the same id. pinnedCPU < 0 means "let the Policy place it via
// SelectCPU"; pinnedCPU >= 0 sets thread.Pinned and places it there
// unconditionally.
//
// On allocation failure no TCB is published to any PerCPU and no policy
// hook runs; the caller sees the error and nothing else changed.
func (m *Manager) CreateThread(entry func(uint64), arg uint64, stackSize uintptr, flags thread.Flags, priority int, pinnedCPU int) (*thread.Thread, error) {
	if m.policy == nil {
		panic("sched: CreateThread called before SetScheduler")
	}
	cpuCount := len(m.cpus)
	if cpuCount == 0 {
		panic("sched: CreateThread called before Initialize")
	}

	provisional := 0
	if pinnedCPU >= 0 {
		provisional = pinnedCPU
		flags |= thread.Pinned
	}

	id := m.allocThreadID()
	t, err := thread.New(id, m.a, m.alc, entry, arg, stackSize, provisional, m.wallClockTicks())
	if err != nil {
		return nil, fmt.Errorf("sched: create thread: %w", err)
	}
	t.Flags = flags

	cpuID := provisional
	if !flags.Is(thread.Pinned) {
		cpuID = m.policy.SelectCPU(t, provisional, cpuCount)
	}
	t.CPU = cpuID

	cpu := m.cpu(cpuID)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	m.policy.OnThreadCreate(cpu, t)
	if priority > 0 {
		m.policy.SetPriority(t, priority)
	}

	return t, nil
}

// ReadyThread transitions Blocked/Sleeping/Created ->
// Ready, then the policy's on_thread_ready hook.
func (m *Manager) ReadyThread(t *thread.Thread) {
	cpu := m.cpu(t.CPU)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	t.MarkReady()
	m.policy.OnThreadReady(cpu, t)
}

// BlockThread transitions Running -> Blocked, then the
// policy's on_thread_blocked hook.
func (m *Manager) BlockThread(t *thread.Thread) {
	cpu := m.cpu(t.CPU)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	t.MarkBlocked()
	m.policy.OnThreadBlocked(cpu, t)
}

// ExitThread transitions any non-terminal state -> Dead,
// then the policy's on_thread_exit hook, then Registry.Retire. The stack is
// freed by a later Registry.Scavenge call, made at the start of the next
// pick on any CPU; Scavenge does not check whether the Dead thread is still
// some CPU's Current.
func (m *Manager) ExitThread(t *thread.Thread) {
	cpu := m.cpu(t.CPU)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	t.MarkExited()
	m.policy.OnThreadExit(cpu, t)
	m.registry.Retire(t)
}

// YieldThread transitions Running -> Ready, then the
// policy's on_thread_yield hook. It does not itself request a reschedule;
// a voluntarily yielding thread follows it with Schedule to actually give
// up the CPU.
func (m *Manager) YieldThread(t *thread.Thread) {
	cpu := m.cpu(t.CPU)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	t.MarkReady()
	m.policy.OnThreadYield(cpu, t)
}

// SetPriority is the one facade operation
// that mutates no Thread state field directly, delegating entirely to the
// policy's own semantics.
func (m *Manager) SetPriority(t *thread.Thread, priority int) {
	cpu := m.cpu(t.CPU)
	scope := cpu.irq.Enter()
	defer scope.Exit()
	cpu.lock.Acquire()
	defer cpu.lock.Release()

	m.policy.SetPriority(t, priority)
}

// GetPriority is a read-only passthrough to the policy. Unlike
// SetPriority it mutates nothing, so it takes no PerCPU lock.
func (m *Manager) GetPriority(t *thread.Thread) int {
	return m.policy.GetPriority(t)
}

// Migrate moves t from its current CPU to dest, under both CPUs' locks
// acquired in ascending id order to avoid an ABBA deadlock against a
// concurrent migration in the opposite direction; the thread moves under
// the destination CPU's lock before the source CPU releases it.
func (m *Manager) Migrate(t *thread.Thread, dest int) {
	from := t.CPU
	if from == dest {
		return
	}
	a, b := m.cpu(from), m.cpu(dest)
	if a.ID > b.ID {
		a, b = b, a
	}

	aScope := a.irq.Enter()
	defer aScope.Exit()
	a.lock.Acquire()
	defer a.lock.Release()

	bScope := b.irq.Enter()
	defer bScope.Exit()
	b.lock.Acquire()
	defer b.lock.Release()

	t.CPU = dest
	m.policy.OnThreadMigrate(t, from, dest)
}

// Balance runs the policy's periodic, non-mandatory rebalance hook across
// every CPU. Not called automatically by Manager — the timer device's
// boot wiring decides how often, if ever, to call it.
func (m *Manager) Balance() {
	for _, cpu := range m.cpus {
		scope := cpu.irq.Enter()
		cpu.lock.Acquire()
		m.policy.Balance(cpu, m.cpus)
		cpu.lock.Release()
		scope.Exit()
	}
}

// Schedule is the voluntary switch path: the same pick-and-publish
// sequence the preemptive tick path runs, but taken under a scoped
// interrupt-disable plus cpu's lock instead of IRQ context. The lock is
// dropped before the switch is applied, because the Switcher parks the
// calling goroutine until this thread is next picked — which is also why
// Schedule is only meaningful when invoked from the running thread's own
// simulated interrupt-return edge (a voluntary yield; see cmd/simkernel's
// workers), never from an unrelated goroutine. Calling it before the
// boot sequence has completed is a programmer error.
func (m *Manager) Schedule(cpuID int) {
	if m.policy == nil {
		panic("sched: Schedule called before SetScheduler")
	}
	if !m.enabled.Load() {
		panic("sched: Schedule called before Enable")
	}
	cpu := m.cpu(cpuID)

	scope := cpu.irq.Enter()
	cpu.lock.Acquire()
	next, isNew, switched := m.pickAndPublish(cpu)
	cpu.lock.Release()
	scope.Exit()

	if switched && m.opts.switcher != nil {
		m.opts.switcher.Switch(cpu.ID, next, isNew)
	}
}

// OnTimerInterrupt is the preemptive tick path, invoked by the timer IRQ
// handler. currentSavedSP is accepted
// to match the real stub's interrupt-frame contract; this simulation has
// no discrete hardware stack-pointer register to thread through a
// goroutine, so thread.Thread's own Context-based SavedSP bookkeeping
// (MarkReady/MarkBlocked/MarkSleeping) is authoritative instead.
func (m *Manager) OnTimerInterrupt(cpuID int, currentSavedSP uintptr, elapsedNS uint64) error {
	_ = currentSavedSP
	if cpuID < 0 || cpuID >= len(m.cpus) {
		return ErrUnknownCPU
	}
	if !m.enabled.Load() {
		return ErrSchedulerDisabled
	}

	cpu := m.cpus[cpuID]
	m.counters.ticks.Add(1)
	cpu.LastTickAt += elapsedNS

	current := cpu.Current
	if current != nil {
		current.AddRuntime(elapsedNS)
	}

	if m.policy.OnTick(cpu, current, elapsedNS) {
		m.scheduleFromInterrupt(cpu)
	}
	return nil
}

// scheduleFromInterrupt picks and publishes the next thread. It runs
// in IRQ context and must not acquire cpu's lock: the lock discipline
// requires interrupts enabled-at-acquire for every non-IRQ path, and the
// IRQ path already owns the CPU by virtue of interrupts being masked for
// its whole duration.
func (m *Manager) scheduleFromInterrupt(cpu *PerCPU) {
	next, isNew, switched := m.pickAndPublish(cpu)
	if switched && m.opts.switcher != nil {
		m.opts.switcher.Switch(cpu.ID, next, isNew)
	}
}

// pickAndPublish is the pick half of a context switch, shared by the IRQ
// and voluntary paths: scavenge a batch of retired threads, ask the policy
// for the next thread, fall back to idle, demote a still-Running previous,
// and promote the choice to Current. The caller must own cpu — either by
// running in IRQ context with interrupts masked, or by holding cpu's lock.
// It reports whether a switch to a different thread must be applied.
func (m *Manager) pickAndPublish(cpu *PerCPU) (next *thread.Thread, isNew bool, switched bool) {
	m.registry.Scavenge(m.opts.scavengeBatch)

	prev := cpu.Current
	next = m.policy.PickNext(cpu)
	if next == nil {
		next = cpu.Idle
	}
	if next == nil {
		return nil, false, false
	}
	if next == prev {
		// A voluntary yield demotes Current to Ready before the pick; if
		// the policy hands the same thread straight back, re-promote it
		// in place rather than switching.
		if prev.State == thread.Ready {
			prev.MarkRunning(cpu.LastTickAt)
		}
		return nil, false, false
	}

	if prev != nil && prev.State == thread.Running {
		prev.MarkReady()
		m.policy.OnThreadYield(cpu, prev)
	}

	isNew = next.MarkRunning(cpu.LastTickAt)
	cpu.Current = next
	m.counters.switches.Add(1)
	return next, isNew, true
}
