package alloc

import (
	"errors"
	"sync"
)

// ErrOutOfMemory is returned when a Slab's heap budget would be exceeded.
// Callers at thread-creation sites surface this as "create failed" rather
// than leaving any partial state published.
var ErrOutOfMemory = errors.New("alloc: heap exhausted")

// Allocator is the collaborator contract thread stacks are allocated
// through (thread.New). PerCPU state and policy extension slots are
// ordinary Go allocations and do not use it.
type Allocator interface {
	// InitHeap fixes the total budget this Allocator may hand out. Zero
	// means unbounded — used by tests that don't care about exhaustion.
	InitHeap(size uintptr)
	Alloc(size uintptr) ([]byte, error)
	Free(block []byte)
}

// Slab is a fixed-size-block allocator: one sync.Pool per distinct block
// size ever requested, so repeated same-size allocations (a kernel thread's
// default stack size, say) recycle rather than churn the garbage collector.
// A running total against the configured budget stands in for a physical
// frame allocator's "out of frames" condition.
type Slab struct {
	mu     sync.Mutex
	pools  map[uintptr]*sync.Pool
	budget uintptr
	used   uintptr
}

// NewSlab returns a Slab with no budget configured (unbounded) until
// InitHeap is called.
func NewSlab() *Slab {
	return &Slab{pools: make(map[uintptr]*sync.Pool)}
}

// InitHeap sets the allocator's total budget and resets accounting. A size
// of zero disables the budget check entirely.
func (s *Slab) InitHeap(size uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = size
	s.used = 0
}

// Alloc returns a zeroed block of exactly size bytes, or ErrOutOfMemory if
// the configured budget would be exceeded.
func (s *Slab) Alloc(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, errors.New("alloc: zero-size allocation")
	}

	s.mu.Lock()
	if s.budget != 0 && s.used+size > s.budget {
		s.mu.Unlock()
		return nil, ErrOutOfMemory
	}
	pool, ok := s.pools[size]
	if !ok {
		blockSize := size
		pool = &sync.Pool{
			New: func() any { return make([]byte, blockSize) },
		}
		s.pools[size] = pool
	}
	s.used += size
	s.mu.Unlock()

	block := pool.Get().([]byte)
	clear(block)
	return block, nil
}

// Free returns a block to its size class's pool. Freeing a nil or
// zero-length block is a no-op.
func (s *Slab) Free(block []byte) {
	if len(block) == 0 {
		return
	}
	size := uintptr(len(block))

	s.mu.Lock()
	pool, ok := s.pools[size]
	if s.used >= size {
		s.used -= size
	} else {
		s.used = 0
	}
	s.mu.Unlock()

	if ok {
		s.putZeroed(pool, block)
	}
}

func (s *Slab) putZeroed(pool *sync.Pool, block []byte) {
	clear(block)
	pool.Put(block)
}
