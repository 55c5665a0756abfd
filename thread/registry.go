package thread

import (
	"sync"

	"github.com/cosmos-os/kernel/alloc"
)

// Registry defers reclamation of Dead threads' stack and extension slot,
// scavenging a bounded batch per call instead of a stop-the-world pass.
// Reclamation is driven by the Dead state transition, not the garbage
// collector, so Registry holds real *Thread pointers and frees
// deterministically.
//
// Registry is safe for concurrent Retire/Scavenge calls, but a given
// Thread must only ever be retired once, after its final MarkExited.
type Registry struct {
	alc alloc.Allocator

	mu   sync.Mutex
	ring []*Thread
	head int
}

// NewRegistry returns an empty Registry that frees reclaimed stacks through
// alc.
func NewRegistry(alc alloc.Allocator) *Registry {
	return &Registry{alc: alc, ring: make([]*Thread, 0, 256)}
}

// Retire enqueues a Dead thread for later stack/extension reclamation and
// frees nothing itself. Manager.ExitThread calls it on the exit path; the
// freeing happens in a later Scavenge call, which does not check whether
// the thread is still some CPU's Current.
func (r *Registry) Retire(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = append(r.ring, t)
}

// Scavenge reclaims up to batchSize pending threads, advancing an internal
// ring cursor so repeated calls eventually visit every retired thread
// without any single call paying for the whole backlog. Returns the number
// of threads actually reclaimed.
func (r *Registry) Scavenge(batchSize int) int {
	if batchSize <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ringLen := len(r.ring)
	if ringLen == 0 {
		return 0
	}

	start := r.head
	end := start + batchSize
	if end > ringLen {
		end = ringLen
	}

	reclaimed := 0
	for i := start; i < end; i++ {
		t := r.ring[i]
		if t == nil || t.State != Dead {
			continue
		}
		r.alc.Free(t.stack)
		t.stack = nil
		t.Extension = nil
		r.ring[i] = nil
		reclaimed++
	}

	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
		r.compactLocked()
	}
	r.head = nextHead

	return reclaimed
}

// Pending reports how many threads are still queued for reclamation.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.ring {
		if t != nil {
			n++
		}
	}
	return n
}

// compactLocked drops reclaimed nil holes from the ring at the end of a
// full cycle. Must be called with mu held.
func (r *Registry) compactLocked() {
	filtered := r.ring[:0]
	for _, t := range r.ring {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	r.ring = filtered
}
