package stride

import (
	"fmt"
	"math"
	"sync"

	"github.com/cosmos-os/kernel/klog"
	"github.com/cosmos-os/kernel/sched"
	"github.com/cosmos-os/kernel/thread"
)

const (
	// largeConst is the stride formula's numerator: large enough that
	// even a single-ticket thread's stride dwarfs any realistic tick
	// count, so pass never wraps during a normal run.
	largeConst = 1 << 32
	// defaultTickets is assigned when create_thread supplies no explicit
	// priority.
	defaultTickets = 1
	// defaultQuantumNS is the policy-chosen time slice.
	defaultQuantumNS = 10_000_000 // 10ms
)

// cpuExtension is stride's PerCPU.Extension: the per-CPU pass/ticket
// bookkeeping plus the run queue backing it.
type cpuExtension struct {
	totalTickets   uint64
	globalPass     uint64
	lastPassUpdate uint64
	runQueue       *thread.RunQueue
}

// threadExtension is stride's per-thread Extension.
type threadExtension struct {
	tickets            uint64
	stride             uint64
	pass               uint64
	quantumNS          uint64
	elapsedInQuantumNS uint64
}

// Policy is the reference scheduling policy: proportional
// fair-share virtual time ("stride scheduling"), tie-broken by insertion
// order, with a read-only quantum-overrun diagnostic
// riding alongside it.
//
// A Policy instance is shared across every CPU it is installed on (one
// call to InitializeCPU per CPU, from sched.Manager.SetScheduler); the
// per-thread tie-break and quantum accounting stay CPU-local via
// PerCPU.Extension / Thread.Extension, but total_tickets is a
// cross-cutting load figure select_cpu needs for every CPU at once, so it
// lives here behind a mutex rather than in any single cpuExtension.
type Policy struct {
	log     *klog.Logger
	overrun *QuantumOverrunStats

	mu           sync.Mutex
	totalTickets []uint64
}

// New returns a Policy. log may be nil to disable the balance-warning
// diagnostic entirely.
func New(log *klog.Logger) *Policy {
	return &Policy{log: log, overrun: NewQuantumOverrunStats()}
}

// Name implements sched.Policy.
func (p *Policy) Name() string { return "stride" }

// Quantiles exposes the read-only quantum-overrun diagnostic. Never
// consulted by any scheduling decision.
func (p *Policy) Quantiles() *QuantumOverrunStats { return p.overrun }

func (p *Policy) ensureCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.totalTickets) < n {
		p.totalTickets = append(p.totalTickets, 0)
	}
}

func (p *Policy) addTickets(cpuID int, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cpuID < 0 || cpuID >= len(p.totalTickets) {
		return
	}
	cur := int64(p.totalTickets[cpuID]) + delta
	if cur < 0 {
		cur = 0
	}
	p.totalTickets[cpuID] = uint64(cur)
}

func (p *Policy) ticketsOf(cpuID int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cpuID < 0 || cpuID >= len(p.totalTickets) {
		return 0
	}
	return p.totalTickets[cpuID]
}

// InitializeCPU allocates cpu's run queue. Implements sched.Policy.
func (p *Policy) InitializeCPU(cpu *sched.PerCPU) {
	p.ensureCapacity(cpu.ID + 1)
	cpu.Extension = &cpuExtension{runQueue: thread.NewRunQueue()}
}

// ShutdownCPU releases cpu's extension. Implements sched.Policy.
func (p *Policy) ShutdownCPU(cpu *sched.PerCPU) {
	cpu.Extension = nil
}

// OnThreadCreate allocates t's extension: tickets default to 1 (set_priority
// rewrites this afterward when the caller supplies one), stride =
// largeConst/tickets, pass starts at the CPU's current global_pass.
func (p *Policy) OnThreadCreate(cpu *sched.PerCPU, t *thread.Thread) {
	ext := cpu.Extension.(*cpuExtension)
	t.Extension = &threadExtension{
		tickets:   defaultTickets,
		stride:    largeConst / defaultTickets,
		pass:      ext.globalPass,
		quantumNS: defaultQuantumNS,
	}
}

// OnThreadReady inserts t into cpu's run queue and counts its tickets
// toward total_tickets. A woken thread's pass is first raised to the CPU's
// current global_pass: a thread that blocked with a low pass and slept
// through many ticks must not come back and monopolize the CPU on the
// strength of virtual time it never spent runnable. The run queue itself
// is sorted lazily, just before PickNext, rather than on every insert.
func (p *Policy) OnThreadReady(cpu *sched.PerCPU, t *thread.Thread) {
	if t.Flags.Is(thread.IdleThread) {
		return
	}
	ext := cpu.Extension.(*cpuExtension)
	if te, ok := t.Extension.(*threadExtension); ok {
		if te.pass < ext.globalPass {
			te.pass = ext.globalPass
		}
		p.addTickets(cpu.ID, int64(te.tickets))
	}
	ext.runQueue.PushBack(t)
}

// OnThreadBlocked removes t from the run queue and its tickets from
// total_tickets.
func (p *Policy) OnThreadBlocked(cpu *sched.PerCPU, t *thread.Thread) {
	p.removeFromQueue(cpu, t)
}

// OnThreadExit removes t from the run queue, its tickets from
// total_tickets, and clears its extension.
func (p *Policy) OnThreadExit(cpu *sched.PerCPU, t *thread.Thread) {
	p.removeFromQueue(cpu, t)
	t.Extension = nil
}

func (p *Policy) removeFromQueue(cpu *sched.PerCPU, t *thread.Thread) {
	if t.Flags.Is(thread.IdleThread) {
		return
	}
	ext := cpu.Extension.(*cpuExtension)
	ext.runQueue.Remove(t.ID)
	if te, ok := t.Extension.(*threadExtension); ok {
		p.addTickets(cpu.ID, -int64(te.tickets))
	}
}

// OnThreadYield resets t's quantum counter and re-inserts it by its
// (already-advanced, by OnTick) pass.
func (p *Policy) OnThreadYield(cpu *sched.PerCPU, t *thread.Thread) {
	if t.Flags.Is(thread.IdleThread) {
		return
	}
	if te, ok := t.Extension.(*threadExtension); ok {
		te.elapsedInQuantumNS = 0
	}
	cpu.Extension.(*cpuExtension).runQueue.PushBack(t)
}

// PickNext sorts cpu's run queue by ascending pass — ties broken by
// insertion order, since RunQueue.Sort is stable — and pops the head.
func (p *Policy) PickNext(cpu *sched.PerCPU) *thread.Thread {
	ext := cpu.Extension.(*cpuExtension)
	ext.runQueue.Sort(lessByPass)
	t, ok := ext.runQueue.PopFront()
	if !ok {
		return nil
	}
	return t
}

func lessByPass(a, b *thread.Thread) bool {
	ae, aok := a.Extension.(*threadExtension)
	be, bok := b.Extension.(*threadExtension)
	if !aok || !bok {
		return false
	}
	return ae.pass < be.pass
}

// OnTick accounts elapsed_ns against the running thread's quantum. Once
// elapsed_in_quantum_ns reaches quantum_ns, it advances pass by stride,
// records the overrun, resets the counter, and requests a reschedule if any
// queued thread's pass is now at or below the current thread's — picking
// the minimum pass across current and queue is what makes runtime converge
// to the tickets proportion; an unconditional switch at every quantum
// boundary would collapse any ticket ratio into strict alternation. An
// idle current reschedules only if the run queue has gained work since the
// last tick. global_pass is refreshed every tick to the minimum pass
// across the run queue (or the current thread's pass if the queue is
// empty).
func (p *Policy) OnTick(cpu *sched.PerCPU, current *thread.Thread, elapsedNS uint64) bool {
	ext := cpu.Extension.(*cpuExtension)

	var reschedule bool
	switch {
	case current == nil || current.State != thread.Running:
		// current has already left Running (a block_thread/exit_thread
		// call that hasn't yet been followed by a reschedule) — the
		// manager must evict it on this very tick regardless of the run
		// queue's contents.
		reschedule = true
	case current.Flags.Is(thread.IdleThread):
		reschedule = ext.runQueue.Len() > 0
	default:
		if te, ok := current.Extension.(*threadExtension); ok {
			te.elapsedInQuantumNS += elapsedNS
			if te.elapsedInQuantumNS >= te.quantumNS {
				p.overrun.Observe(float64(te.elapsedInQuantumNS - te.quantumNS))
				te.pass += te.stride
				te.elapsedInQuantumNS = 0
				if queued, ok := ext.queueMinPass(); ok && queued <= te.pass {
					reschedule = true
				}
			}
		}
	}

	ext.globalPass = ext.minPass(current)
	ext.lastPassUpdate++
	return reschedule
}

// queueMinPass returns the smallest pass across the run queue, reporting
// false when the queue holds no stride-managed thread.
func (ext *cpuExtension) queueMinPass() (uint64, bool) {
	min := uint64(math.MaxUint64)
	found := false
	ext.runQueue.Each(func(t *thread.Thread) {
		if te, ok := t.Extension.(*threadExtension); ok {
			if !found || te.pass < min {
				min, found = te.pass, true
			}
		}
	})
	return min, found
}

func (ext *cpuExtension) minPass(current *thread.Thread) uint64 {
	if min, ok := ext.queueMinPass(); ok {
		return min
	}
	if current != nil {
		if te, ok := current.Extension.(*threadExtension); ok {
			return te.pass
		}
	}
	return ext.globalPass
}

// SelectCPU returns a pinned thread's declared CPU unchanged, else the CPU
// with the smallest total_tickets (least loaded).
func (p *Policy) SelectCPU(t *thread.Thread, currentCPU, cpuCount int) int {
	if t.Flags.Is(thread.Pinned) {
		return currentCPU
	}
	best := currentCPU
	bestLoad := p.ticketsOf(currentCPU)
	for i := 0; i < cpuCount; i++ {
		if i == currentCPU {
			continue
		}
		if load := p.ticketsOf(i); load < bestLoad {
			best, bestLoad = i, load
		}
	}
	return best
}

// OnThreadMigrate moves t's ticket weight from one CPU's total_tickets to
// the other's.
func (p *Policy) OnThreadMigrate(t *thread.Thread, from, to int) {
	if te, ok := t.Extension.(*threadExtension); ok {
		p.addTickets(from, -int64(te.tickets))
		p.addTickets(to, int64(te.tickets))
	}
}

// Balance logs a throttled warning when cpu's ticket load exceeds twice
// the cross-CPU average — the only rebalancing stride performs; it never
// migrates threads on its own.
func (p *Policy) Balance(cpu *sched.PerCPU, all []*sched.PerCPU) {
	if p.log == nil || len(all) < 2 {
		return
	}
	var total uint64
	for _, c := range all {
		total += p.ticketsOf(c.ID)
	}
	avg := total / uint64(len(all))
	mine := p.ticketsOf(cpu.ID)
	if avg > 0 && mine > 2*avg {
		p.log.Throttled(
			fmt.Sprintf("stride-imbalance-cpu-%d", cpu.ID),
			"cpu carries more than twice the average ticket load",
			klog.Int("cpu", cpu.ID),
			klog.Uint64("tickets", mine),
			klog.Uint64("average", avg),
		)
	}
}

// SetPriority rewrites tickets and recomputes stride; pass is left
// unchanged. If t is currently counted in its CPU's
// total_tickets (Ready or Running), the running total is adjusted by the
// delta.
func (p *Policy) SetPriority(t *thread.Thread, priority int) {
	te, ok := t.Extension.(*threadExtension)
	if !ok {
		return
	}
	if priority < 1 {
		priority = 1
	}
	old := te.tickets
	te.tickets = uint64(priority)
	te.stride = largeConst / te.tickets
	if t.State == thread.Ready || t.State == thread.Running {
		p.addTickets(t.CPU, int64(te.tickets)-int64(old))
	}
}

// GetPriority returns t's current ticket count, or 0 if t has no stride
// extension (never created under this policy).
func (p *Policy) GetPriority(t *thread.Thread) int {
	te, ok := t.Extension.(*threadExtension)
	if !ok {
		return 0
	}
	return int(te.tickets)
}
