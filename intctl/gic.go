package intctl

import (
	"errors"
	"sync"
)

// GICv2 distributor and CPU-interface register offsets, carried over from
// the QEMU virt machine's memory map even though this controller is
// host-simulated: they document exactly which real register each tracked
// field stands in for.
const (
	gicDistBase = 0x08000000
	gicCPUBase  = 0x08010000

	gicdCTLR       = gicDistBase + 0x000
	gicdISENABLERn = gicDistBase + 0x100
	gicdICENABLERn = gicDistBase + 0x180

	giccCTLR = gicCPUBase + 0x000
	giccIAR  = gicCPUBase + 0x00C
	giccEOIR = gicCPUBase + 0x010

	// maxGICInterrupts is GICv2's 1020 supported IDs (16 SGIs +
	// PPIs, up through SPI 1019).
	maxGICInterrupts = 1020

	// SpuriousInterrupt is the GIC's documented "no pending interrupt" ID,
	// returned by a real IAR read and by AckInterrupt here.
	SpuriousInterrupt uint32 = 1023

	// TimerPPI is the ARM Generic Timer's per-CPU PPI id on the QEMU virt
	// platform.
	TimerPPI uint32 = 27
)

// ARM64 exception classes. Synchronous and SError are bound to the panic
// path; IRQ and FIQ are routed through the normal dispatcher.
const (
	VectorSynchronous uint32 = 0
	VectorIRQ         uint32 = 1
	VectorFIQ         uint32 = 2
	VectorSError      uint32 = 3
)

// GIC is a host-simulated GICv2: distributor enable bits packed 32-per-word
// exactly as GICD_ISENABLERn/GICD_ICENABLERn would be, a vector redirection
// table, and a FIFO of raised-but-unacknowledged interrupts standing in for
// the CPU interface's IAR/EOIR handshake.
type GIC struct {
	mu          sync.Mutex
	initialized bool

	enableWords [maxGICInterrupts/32 + 1]uint32
	redirect    map[uint32]uint32 // irq -> vector
	pending     []uint32          // FIFO, oldest first
	eoiCount    uint64
}

// NewGIC returns an uninitialized GIC.
func NewGIC() *GIC {
	return &GIC{redirect: make(map[uint32]uint32)}
}

func (g *GIC) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = true
	return nil
}

func (g *GIC) IsInitialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized
}

func (g *GIC) RouteIRQ(irq, vector uint32, startMasked bool) error {
	if irq >= maxGICInterrupts {
		return errors.New("intctl: GIC irq id out of range")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return errors.New("intctl: GIC.RouteIRQ called before Initialize")
	}
	g.redirect[irq] = vector
	if startMasked {
		g.disableLocked(irq)
	} else {
		g.enableLocked(irq)
	}
	return nil
}

// EnableInterrupt sets the ISENABLER bit for irq, mirroring
// GICD_ISENABLERn's 32-interrupts-per-register packing.
func (g *GIC) EnableInterrupt(irq uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enableLocked(irq)
}

// DisableInterrupt clears the ICENABLER bit for irq.
func (g *GIC) DisableInterrupt(irq uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disableLocked(irq)
}

func (g *GIC) enableLocked(irq uint32) {
	g.enableWords[irq/32] |= 1 << (irq % 32)
}

func (g *GIC) disableLocked(irq uint32) {
	g.enableWords[irq/32] &^= 1 << (irq % 32)
}

func (g *GIC) enabledLocked(irq uint32) bool {
	return g.enableWords[irq/32]&(1<<(irq%32)) != 0
}

// Raise simulates a hardware line asserting irq: if it is currently
// enabled, it is appended to the pending FIFO for the next AckInterrupt.
// Disabled or unrouted IRQs are dropped, matching real GIC behavior.
func (g *GIC) Raise(irq uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, routed := g.redirect[irq]; !routed || !g.enabledLocked(irq) {
		return
	}
	g.pending = append(g.pending, irq)
}

// AckInterrupt reads the oldest pending interrupt, as a real IAR read
// would, or SpuriousInterrupt if none is pending.
func (g *GIC) AckInterrupt() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return SpuriousInterrupt
	}
	id := g.pending[0]
	g.pending = g.pending[1:]
	return id
}

func (g *GIC) SendEOI(uint32) {
	g.mu.Lock()
	g.eoiCount++
	g.mu.Unlock()
}

// EOICount reports how many EOIs have been sent, for diagnostics and tests.
func (g *GIC) EOICount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eoiCount
}

func (g *GIC) HandleFatalException(vector uint32, _, _ uint64) bool {
	return vector == VectorSynchronous || vector == VectorSError
}
