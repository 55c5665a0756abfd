package intctl

import (
	"errors"
	"sync"
)

// x86-64 exception vectors bound to the panic path: divide
// error, invalid opcode, double fault, general protection, page fault,
// stack-segment fault, alignment check, machine check.
const (
	VectorDivideError       uint32 = 0x00
	VectorInvalidOpcode     uint32 = 0x06
	VectorDoubleFault       uint32 = 0x08
	VectorStackSegmentFault uint32 = 0x0C
	VectorGeneralProtection uint32 = 0x0D
	VectorPageFault         uint32 = 0x0E
	VectorAlignmentCheck    uint32 = 0x11
	VectorMachineCheck      uint32 = 0x12
)

var fatalVectorsAMD64 = map[uint32]bool{
	VectorDivideError:       true,
	VectorInvalidOpcode:     true,
	VectorDoubleFault:       true,
	VectorStackSegmentFault: true,
	VectorGeneralProtection: true,
	VectorPageFault:         true,
	VectorAlignmentCheck:    true,
	VectorMachineCheck:      true,
}

type apicRedirect struct {
	vector uint32
	masked bool
}

// APIC is a host-simulated local-APIC/IOAPIC pair: a redirection table
// keyed by IRQ line, and an EOI counter standing in for the real EOI MMIO
// write. The vector a handler is dispatched on already names the
// interrupt, so AckInterrupt always returns NoAckRequired.
type APIC struct {
	mu          sync.Mutex
	initialized bool
	redirect    map[uint32]apicRedirect
	eoiCount    uint64
}

// NewAPIC returns an uninitialized APIC.
func NewAPIC() *APIC {
	return &APIC{redirect: make(map[uint32]apicRedirect)}
}

func (a *APIC) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = true
	return nil
}

func (a *APIC) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

func (a *APIC) RouteIRQ(irq, vector uint32, startMasked bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return errors.New("intctl: APIC.RouteIRQ called before Initialize")
	}
	a.redirect[irq] = apicRedirect{vector: vector, masked: startMasked}
	return nil
}

func (a *APIC) SendEOI(uint32) {
	a.mu.Lock()
	a.eoiCount++
	a.mu.Unlock()
}

// EOICount reports how many EOIs have been sent, for diagnostics and tests.
func (a *APIC) EOICount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eoiCount
}

func (a *APIC) AckInterrupt() uint32 {
	return NoAckRequired
}

func (a *APIC) HandleFatalException(vector uint32, _, _ uint64) bool {
	return fatalVectorsAMD64[vector]
}

// Route returns the currently installed vector/mask for irq, for tests.
func (a *APIC) Route(irq uint32) (vector uint32, masked bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.redirect[irq]
	return r.vector, r.masked, ok
}
