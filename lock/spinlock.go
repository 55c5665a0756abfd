package lock

import (
	"runtime"
	"sync/atomic"
)

const (
	released uint32 = 0
	acquired uint32 = 1
)

// Spinlock is a test-and-set lock. It is not reentrant: acquiring a held
// Spinlock from the same goroutine deadlocks, same as real hardware would
// spin forever against itself.
//
// Cache-line padding on either side of the flag keeps it isolated: on a
// multi-CPU machine, two unrelated
// Spinlocks sharing a cache line would false-share on every Acquire/Release,
// which is exactly the kind of cross-CPU interference a per-CPU scheduler
// cannot tolerate.
type Spinlock struct { //nolint:govet
	_     [64]byte
	state atomic.Uint32
	_     [60]byte
}

// Acquire spins until the lock is observed released, then claims it. The
// caller must have masked interrupts first if this lock is ever touched
// from an IRQ handler on the same CPU (see package doc).
func (s *Spinlock) Acquire() {
	for !s.state.CompareAndSwap(released, acquired) {
		runtime.Gosched()
	}
}

// TryAcquire attempts a single non-blocking claim, returning whether it
// succeeded.
func (s *Spinlock) TryAcquire() bool {
	return s.state.CompareAndSwap(released, acquired)
}

// Release stores the released value. Releasing an already-released lock is
// a programmer error in the kernel proper, but this method does not itself
// panic on it — double-release detection belongs to callers that can name
// the lock in their panic message.
func (s *Spinlock) Release() {
	s.state.Store(released)
}

// Held reports whether the lock is currently claimed. Diagnostic use only —
// never used as the basis of a lock/unlock decision.
func (s *Spinlock) Held() bool {
	return s.state.Load() == acquired
}
