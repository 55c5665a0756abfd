package intr

import (
	"sync"

	"github.com/cosmos-os/kernel/thread"
)

// Loop is the simulated per-CPU execution engine standing in for the real
// interrupt stub's stack-pointer swap (package doc). Exactly one registered
// thread's goroutine runs at a time; every other one is parked, blocked
// receiving on its own resume channel. Switch performs the handoff: it is
// the Switcher package sched.Manager calls once it has decided which thread
// runs next.
//
// Loop has no notion of scheduling policy or timer ticks — those live in
// sched and timerdev. A thread body drives preemption checks itself, by
// calling back into the facade that ultimately invokes Switch (see
// cmd/simkernel), the same way a real thread only yields the CPU at an
// interrupt-return edge.
type Loop struct {
	cpu int

	mu      sync.Mutex
	resume  map[thread.ID]chan struct{}
	current *thread.Thread
}

// NewLoop returns an empty Loop for the given logical CPU id.
func NewLoop(cpu int) *Loop {
	return &Loop{cpu: cpu, resume: make(map[thread.ID]chan struct{})}
}

// CPU returns the logical CPU id this Loop simulates.
func (l *Loop) CPU() int { return l.cpu }

// Current returns the thread currently occupying this CPU's goroutine slot,
// or nil before Boot.
func (l *Loop) Current() *thread.Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Register spawns t's body goroutine, parked immediately on its own resume
// channel until Boot or Switch first selects it. Safe to call only once per
// thread.
func (l *Loop) Register(t *thread.Thread) {
	l.mu.Lock()
	ch, ok := l.resume[t.ID]
	if !ok {
		ch = make(chan struct{})
		l.resume[t.ID] = ch
	}
	l.mu.Unlock()

	go func() {
		<-ch
		t.Entry()(t.Arg())
	}()
}

// Boot starts this CPU's very first thread (normally the idle thread,
// installed strictly before the scheduler is enabled).
// Unlike Switch, Boot has no previous thread to park: call it exactly once,
// before this CPU has ever run anything.
func (l *Loop) Boot(t *thread.Thread) {
	l.mu.Lock()
	l.current = t
	ch, ok := l.resume[t.ID]
	if !ok {
		ch = make(chan struct{})
		l.resume[t.ID] = ch
	}
	l.mu.Unlock()

	close(ch)
}

// Switch implements package sched's Switcher contract. It must be called
// from the currently-running thread's own goroutine — directly, or nested
// inside whatever facade call that thread used to request a reschedule —
// since parking works by blocking that very call until this thread is
// chosen to run again.
func (l *Loop) Switch(cpuID int, next *thread.Thread, isNew bool) {
	_ = isNew // both paths are an identical channel-receive in this simulation; see package doc

	l.mu.Lock()
	prev := l.current
	l.current = next

	nextCh, ok := l.resume[next.ID]
	if !ok {
		nextCh = make(chan struct{})
		l.resume[next.ID] = nextCh
	}

	var parkCh chan struct{}
	if prev != nil && prev.ID != next.ID {
		parkCh = make(chan struct{})
		l.resume[prev.ID] = parkCh
	}
	l.mu.Unlock()

	close(nextCh)

	if parkCh != nil {
		<-parkCh
	}
}
