// Command simkernel wires every package in this module into a runnable,
// if entirely simulated, kernel: a handful of logical CPUs, each driven by
// a real timerfd, dispatching through the interrupt manager into the
// scheduler manager running the stride policy, with kernel threads whose
// bodies are plain goroutines parked and resumed by package intr's Loop.
//
// It exists to exercise the wiring end to end, not to be a library: every
// other package's tests drive the interesting cases directly.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cosmos-os/kernel/alloc"
	"github.com/cosmos-os/kernel/arch"
	"github.com/cosmos-os/kernel/intctl"
	"github.com/cosmos-os/kernel/intr"
	"github.com/cosmos-os/kernel/klog"
	"github.com/cosmos-os/kernel/sched"
	"github.com/cosmos-os/kernel/serial"
	"github.com/cosmos-os/kernel/stride"
	"github.com/cosmos-os/kernel/thread"
	"github.com/cosmos-os/kernel/timerdev"
)

const (
	timerIntervalNS = 2_000_000 // 2ms between simulated timer interrupts
	timerVector     = 0x20      // an IRQ vector outside the fixed fatal-exception set
	stackSize       = 64 * 1024
)

// cpuFacade is the one piece of wiring every kernel thread body on a given
// CPU calls back into: it stands in for "check for a pending interrupt at
// an instruction boundary," the cooperative substitute this simulation
// uses for an asynchronous hardware timer tick (see intr.Loop's doc
// comment on why Switch must run on the interrupted thread's own
// goroutine).
type cpuFacade struct {
	id    int
	loop  *intr.Loop
	timer timerdev.Device
	im    *intr.Manager
	log   *klog.Logger
}

// Tick blocks for the next timer interrupt, routes it through the
// interrupt manager's dispatch table (exercising the same vector ->
// handler path a fatal exception would take), and reports whether the CPU
// is still accepting ticks.
func (c *cpuFacade) Tick() bool {
	elapsed, ok := c.timer.Wait()
	if !ok {
		return false
	}
	c.im.Dispatch(timerVector, nil, 0, elapsed)
	return !c.im.Halted()
}

// loopRouter is the single sched.Switcher a Manager with many CPUs needs:
// it fans a CPU-tagged Switch call out to that CPU's own Loop.
type loopRouter struct {
	loops []*intr.Loop
}

func (r *loopRouter) Switch(cpuID int, next *thread.Thread, isNew bool) {
	r.loops[cpuID].Switch(cpuID, next, isNew)
}

func main() {
	cpuCount := flag.Int("cpus", 2, "number of logical CPUs to simulate")
	runFor := flag.Duration("for", 3*time.Second, "how long to run before reporting and exiting")
	flag.Parse()

	writer := serial.NewUART(1)
	log := klog.New(writer, map[time.Duration]int{time.Second: 4})

	a := arch.AMD64
	alc := alloc.NewSlab()

	controller := intctl.NewAPIC()
	if err := controller.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "simkernel: initialize interrupt controller:", err)
		os.Exit(1)
	}

	router := &loopRouter{}
	policy := stride.New(log)
	m := sched.NewManager(a, alc, sched.WithSwitcher(router), sched.WithLogger(log))
	m.Initialize(*cpuCount)
	m.SetScheduler(policy)

	cpus := make([]*cpuFacade, *cpuCount)
	for i := 0; i < *cpuCount; i++ {
		loop := intr.NewLoop(i)
		router.loops = append(router.loops, loop)

		timer := timerdev.NewLinuxTimer()
		if err := timer.Start(timerIntervalNS); err != nil {
			fmt.Fprintln(os.Stderr, "simkernel: start timer:", err)
			os.Exit(1)
		}

		// Each CPU gets its own Manager (its own fixed vector table), the
		// same way a real machine gives every CPU its own IDT/local vector
		// table even while IRQ routing hardware (here, the one shared APIC)
		// is common.
		cpuID := i
		im := intr.NewManager(controller, writer, log)
		im.SetHandler(timerVector, func(ctx arch.Context, aux1, aux2 uint64) {
			_ = ctx
			_ = aux1
			if err := m.OnTimerInterrupt(cpuID, 0, aux2); err != nil {
				log.Throttled("timer-interrupt-rejected", "timer interrupt rejected", klog.Err(err))
			}
		})

		cpu := &cpuFacade{id: i, loop: loop, timer: timer, im: im, log: log}
		cpus[i] = cpu

		idle, err := thread.New(thread.ID(1000+i), a, alc, idleBody(cpu), 0, stackSize, i, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "simkernel: create idle thread:", err)
			os.Exit(1)
		}
		idle.Flags |= thread.KernelThread
		loop.Register(idle)
		m.SetupIdleThread(i, idle)
		loop.Boot(idle)
	}

	m.Enable()
	log.Boot("scheduler enabled", klog.Int("cpus", *cpuCount))

	spawnWorker := func(name string, tickets, rounds int) {
		var self *thread.Thread
		var cpu *cpuFacade
		iteration := 0
		entry := func(uint64) {
			for iteration < rounds {
				iteration++
				if iteration%500 == 0 {
					log.Boot("worker progress", klog.Str("name", name), klog.Int("iteration", iteration))
				}
				if iteration%100 == 0 {
					// Voluntary yield: give an equal-pass sibling a turn
					// mid-quantum. Schedule runs on this thread's own
					// goroutine, so the switch it may request parks us
					// right here until we are picked again.
					m.YieldThread(self)
					m.Schedule(self.CPU)
					continue
				}
				if !cpu.Tick() {
					return
				}
			}
			m.ExitThread(self)
			log.Boot("worker finished", klog.Str("name", name))
			// Dead threads still occupy the CPU until the next tick
			// switches away; keep pumping ticks so that switch can park
			// this goroutine instead of stranding the CPU.
			for cpu.Tick() {
			}
		}

		t, err := m.CreateThread(entry, 0, stackSize, 0, tickets, -1)
		if err != nil {
			log.Warn("create worker failed", klog.Str("name", name), klog.Err(err))
			return
		}
		self = t
		cpu = cpus[t.CPU]
		cpu.loop.Register(t)
		m.ReadyThread(t)
		log.Boot("worker created", klog.Str("name", name), klog.Int("cpu", t.CPU), klog.Int("tickets", tickets))
	}

	spawnWorker("alpha", 1, 100000)
	spawnWorker("beta", 1, 100000)
	spawnWorker("gamma", 5, 100000)

	time.Sleep(*runFor)

	for _, cpu := range cpus {
		_ = cpu.timer.Stop()
	}

	metrics := m.Metrics()
	q := policy.Quantiles()
	log.Boot("shutdown report",
		klog.Uint64("ticks_processed", metrics.TicksProcessed),
		klog.Uint64("context_switches", metrics.ContextSwitches),
		klog.Int("overrun_samples", q.Count()),
	)
	fmt.Printf("quantum overrun ns: p50=%.0f p99=%.0f mean=%.0f\n", q.P50(), q.P99(), q.Mean())
}

func idleBody(cpu *cpuFacade) func(uint64) {
	return func(uint64) {
		for cpu.Tick() {
		}
	}
}
