package intctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGICRouteAndRaise(t *testing.T) {
	g := NewGIC()
	require.NoError(t, g.Initialize())
	require.NoError(t, g.RouteIRQ(TimerPPI, 0x40, false))

	g.Raise(TimerPPI)
	assert.Equal(t, TimerPPI, g.AckInterrupt())
	g.SendEOI(TimerPPI)
	assert.Equal(t, uint64(1), g.EOICount())

	assert.Equal(t, SpuriousInterrupt, g.AckInterrupt(), "nothing pending after ack")
}

func TestGICRaiseWhileDisabledIsDropped(t *testing.T) {
	g := NewGIC()
	require.NoError(t, g.Initialize())
	require.NoError(t, g.RouteIRQ(TimerPPI, 0x40, true)) // startMasked

	g.Raise(TimerPPI)
	assert.Equal(t, SpuriousInterrupt, g.AckInterrupt())

	g.EnableInterrupt(TimerPPI)
	g.Raise(TimerPPI)
	assert.Equal(t, TimerPPI, g.AckInterrupt())
}

func TestGICRouteRequiresInitialize(t *testing.T) {
	g := NewGIC()
	err := g.RouteIRQ(TimerPPI, 0x40, false)
	assert.Error(t, err)
}

func TestGICRouteRejectsOutOfRangeIRQ(t *testing.T) {
	g := NewGIC()
	require.NoError(t, g.Initialize())
	err := g.RouteIRQ(maxGICInterrupts, 0x40, false)
	assert.Error(t, err)
}

func TestGICPendingIsFIFO(t *testing.T) {
	g := NewGIC()
	require.NoError(t, g.Initialize())
	require.NoError(t, g.RouteIRQ(16, 0x50, false))
	require.NoError(t, g.RouteIRQ(17, 0x51, false))

	g.Raise(16)
	g.Raise(17)
	assert.Equal(t, uint32(16), g.AckInterrupt())
	assert.Equal(t, uint32(17), g.AckInterrupt())
}

func TestGICFatalExceptionClasses(t *testing.T) {
	g := NewGIC()
	assert.True(t, g.HandleFatalException(VectorSynchronous, 0, 0))
	assert.True(t, g.HandleFatalException(VectorSError, 0, 0))
	assert.False(t, g.HandleFatalException(VectorIRQ, 0, 0))
	assert.False(t, g.HandleFatalException(VectorFIQ, 0, 0))
}
