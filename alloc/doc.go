// Package alloc provides the fixed-size block allocator the kernel uses for
// thread stacks, host-simulated as a sync.Pool-backed freelist per distinct
// block size instead of a real physical-frame allocator. Thread control
// blocks, per-CPU state and policy extension slots are ordinary Go
// allocations and do not go through it.
package alloc
