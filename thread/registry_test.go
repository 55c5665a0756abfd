package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmos-os/kernel/alloc"
	"github.com/cosmos-os/kernel/arch"
)

func deadTestThread(t *testing.T, alc alloc.Allocator) *Thread {
	t.Helper()
	th, err := New(1, arch.AMD64, alc, func(uint64) {}, 0, 4096, 0, 0)
	require.NoError(t, err)
	th.MarkReady()
	th.MarkRunning(0)
	th.MarkExited()
	return th
}

func TestRegistryScavengeReclaimsDeadThread(t *testing.T) {
	slab := alloc.NewSlab()
	reg := NewRegistry(slab)

	th := deadTestThread(t, slab)
	reg.Retire(th)
	assert.Equal(t, 1, reg.Pending())

	n := reg.Scavenge(10)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, reg.Pending())
	assert.Nil(t, th.stack)
	assert.Nil(t, th.Extension)
}

func TestRegistrySkipsNonDeadThreads(t *testing.T) {
	slab := alloc.NewSlab()
	reg := NewRegistry(slab)

	th, err := New(1, arch.AMD64, slab, func(uint64) {}, 0, 4096, 0, 0)
	require.NoError(t, err)
	th.MarkReady()
	reg.Retire(th) // not actually Dead; Scavenge must leave it alone

	n := reg.Scavenge(10)
	assert.Equal(t, 0, n)
	assert.NotNil(t, th.stack)
}

func TestRegistryScavengeBatching(t *testing.T) {
	slab := alloc.NewSlab()
	reg := NewRegistry(slab)

	for i := 0; i < 25; i++ {
		reg.Retire(deadTestThread(t, slab))
	}
	assert.Equal(t, 25, reg.Pending())

	total := 0
	for reg.Pending() > 0 {
		total += reg.Scavenge(10)
	}
	assert.Equal(t, 25, total)
}

func TestRegistryScavengeZeroBatchIsNoop(t *testing.T) {
	slab := alloc.NewSlab()
	reg := NewRegistry(slab)
	reg.Retire(deadTestThread(t, slab))
	assert.Equal(t, 0, reg.Scavenge(0))
	assert.Equal(t, 1, reg.Pending())
}
