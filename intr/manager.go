package intr

import (
	"sync"
	"sync/atomic"

	"github.com/cosmos-os/kernel/arch"
	"github.com/cosmos-os/kernel/intctl"
	"github.com/cosmos-os/kernel/klog"
	"github.com/cosmos-os/kernel/serial"
)

// VectorCount is the size of the fixed handler table: large enough to cover
// every x86-64 IDT vector (256) and, since ARM64's exception-class space is
// far smaller, its vectors too. Unused entries are simply never installed.
const VectorCount = 256

// Handler is a managed interrupt/exception handler, invoked with a pointer
// to the dispatched Context plus whatever auxiliary fault data the vector
// carries (error code / fault address on x86-64, ESR / FAR on ARM64; zero
// for vectors that don't produce any).
type Handler func(ctx arch.Context, aux1, aux2 uint64)

// vectorNamesAMD64 and vectorNamesARM64 label the fixed set of fatal
// exception vectors for the panic-path serial dump.
// The two architectures reuse small vector numbers for unrelated
// exceptions, so which table applies depends on which intctl.Controller
// this Manager was built with.
var vectorNamesAMD64 = map[uint32]string{
	intctl.VectorDivideError:       "Divide Error",
	intctl.VectorInvalidOpcode:     "Invalid Opcode",
	intctl.VectorDoubleFault:       "Double Fault",
	intctl.VectorStackSegmentFault: "Stack Segment Fault",
	intctl.VectorGeneralProtection: "General Protection Fault",
	intctl.VectorPageFault:         "Page Fault",
	intctl.VectorAlignmentCheck:    "Alignment Check",
	intctl.VectorMachineCheck:      "Machine Check",
}

var vectorNamesARM64 = map[uint32]string{
	intctl.VectorSynchronous: "Synchronous Exception",
	intctl.VectorSError:      "SError",
}

// Manager is the interrupt manager: the fixed vector ->
// handler table, the dispatcher the simulated stub calls into, and the
// allocation-free fatal-exception panic path. It delegates route_irq,
// send_eoi and ack_interrupt to the platform intctl.Controller collaborator.
type Manager struct {
	mu         sync.RWMutex
	handlers   [VectorCount]Handler
	controller intctl.Controller
	writer     serial.Writer
	log        *klog.Logger

	halted atomic.Bool
}

// NewManager returns a Manager with an empty vector table.
func NewManager(controller intctl.Controller, writer serial.Writer, log *klog.Logger) *Manager {
	return &Manager{controller: controller, writer: writer, log: log}
}

// SetHandler installs or replaces the handler for vector — idempotent,
// last writer wins.
func (m *Manager) SetHandler(vector uint32, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[vector%VectorCount] = h
}

// Halted reports whether the fatal-exception path has fired. Once true,
// the CPU is modeled as spinning with interrupts masked: Dispatch becomes
// a no-op and no further output is produced.
func (m *Manager) Halted() bool {
	return m.halted.Load()
}

// RouteIRQ delegates to the platform interrupt controller.
func (m *Manager) RouteIRQ(irq, vector uint32, startMasked bool) error {
	return m.controller.RouteIRQ(irq, vector, startMasked)
}

// SendEOI delegates to the platform interrupt controller.
func (m *Manager) SendEOI(id uint32) {
	m.controller.SendEOI(id)
}

// AckInterrupt delegates to the platform interrupt controller.
func (m *Manager) AckInterrupt() uint32 {
	return m.controller.AckInterrupt()
}

// Dispatch is what the simulated stub calls after constructing ctx on
// (simulated) entry: it checks whether the controller treats this vector as
// always-fatal, then looks up and invokes the installed handler. An unknown
// vector — no handler installed, and not a recognized fatal vector — is
// itself treated as fatal.
func (m *Manager) Dispatch(vector uint32, ctx arch.Context, aux1, aux2 uint64) {
	if m.halted.Load() {
		return
	}

	if m.controller.HandleFatalException(vector, aux1, aux2) {
		m.fatal(vector, ctx, aux1, aux2)
		return
	}

	m.mu.RLock()
	h := m.handlers[vector%VectorCount]
	m.mu.RUnlock()

	if h == nil {
		m.fatal(vector, ctx, aux1, aux2)
		return
	}

	h(ctx, aux1, aux2)
}

// fatal is the allocation-free panic path: it writes the vector, every
// saved register, and the auxiliary fault data byte-by-byte to the serial
// port, then masks interrupts and halts. No attempt is made to resume.
func (m *Manager) fatal(vector uint32, ctx arch.Context, aux1, aux2 uint64) {
	names := vectorNamesAMD64
	if _, isGIC := m.controller.(*intctl.GIC); isGIC {
		names = vectorNamesARM64
	}
	name, ok := names[vector]
	if !ok {
		name = "Unknown Exception"
	}

	m.writer.WriteString("KERNEL PANIC: ")
	m.writer.WriteString(name)
	m.writer.WriteString(" vector=")
	m.writer.WriteHex(uint64(vector))
	m.writer.WriteString(" aux1=")
	m.writer.WriteHex(aux1)
	m.writer.WriteString(" aux2=")
	m.writer.WriteHex(aux2)
	if ctx != nil {
		ctx.DumpRegisters(m.writer)
	}
	m.writer.WriteByte('\n')

	m.halted.Store(true)
}
