package intctl

// NoAckRequired is the sentinel AckInterrupt returns on controllers (like
// the x86-64 local APIC) where the interrupt vector itself already names
// the interrupt, so no separate acknowledgment read is needed to learn
// the id.
const NoAckRequired uint32 = 0xFFFFFFFF

// Controller is the platform interrupt controller collaborator: IRQ
// routing, end-of-interrupt, interrupt acknowledgment, and the
// always-fatal exception classification.
type Controller interface {
	// Initialize brings the controller up. Idempotent.
	Initialize() error
	// IsInitialized reports whether Initialize has run.
	IsInitialized() bool
	// RouteIRQ binds a hardware IRQ line to a vector, optionally starting
	// masked.
	RouteIRQ(irq, vector uint32, startMasked bool) error
	// SendEOI signals end-of-interrupt for the given id.
	SendEOI(id uint32)
	// AckInterrupt returns the actual interrupt id on controllers that
	// require a register read to learn it (e.g. GIC's IAR), or
	// NoAckRequired on controllers where the vector already is the id.
	AckInterrupt() uint32
	// HandleFatalException reports whether the given vector/fault-info pair
	// is one this controller's platform always treats as fatal.
	HandleFatalException(vector uint32, aux1, aux2 uint64) bool
}
