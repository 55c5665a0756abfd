// Package intctl provides the Interrupt Manager's platform interrupt
// controller collaborator. APIC models the x86-64 local
// APIC/IOAPIC pair; GIC models the ARM64 GICv2 distributor/CPU interface.
//
// Both are host-simulated: there is no MMIO here, only the same state
// machine a real driver would push through real registers. GIC keeps the
// real GICv2 register offsets as named constants even though nothing
// dereferences them, so the simulated behavior (enable-bit packing,
// IAR/EOIR handshake, spurious-interrupt sentinel) stays traceable to the
// hardware it stands in for.
package intctl
