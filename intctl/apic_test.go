package intctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPICRouteRequiresInitialize(t *testing.T) {
	a := NewAPIC()
	err := a.RouteIRQ(4, 0x30, false)
	assert.Error(t, err)

	require.NoError(t, a.Initialize())
	assert.True(t, a.IsInitialized())
	err = a.RouteIRQ(4, 0x30, false)
	require.NoError(t, err)

	vec, masked, ok := a.Route(4)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x30), vec)
	assert.False(t, masked)
}

func TestAPICAckIsSentinel(t *testing.T) {
	a := NewAPIC()
	assert.Equal(t, NoAckRequired, a.AckInterrupt())
}

func TestAPICEOICounts(t *testing.T) {
	a := NewAPIC()
	require.NoError(t, a.Initialize())
	a.SendEOI(0x30)
	a.SendEOI(0x31)
	assert.Equal(t, uint64(2), a.EOICount())
}

func TestAPICFatalVectors(t *testing.T) {
	a := NewAPIC()
	assert.True(t, a.HandleFatalException(VectorPageFault, 0xDEADBEEF, 0))
	assert.True(t, a.HandleFatalException(VectorDoubleFault, 0, 0))
	assert.False(t, a.HandleFatalException(0x20, 0, 0))
}
