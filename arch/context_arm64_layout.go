package arch

import "unsafe"

// GPRegistersARM64 holds X0..X30 in architectural order, followed by the
// banked stack pointer for the interrupted exception level.
type GPRegistersARM64 struct {
	X    [31]uint64
	SP   uintptr
	ELR  uintptr // exception link register: resume PC
	SPSR uint64  // saved program status register
}

// FaultInfoARM64 carries the exception vector plus the two syndrome
// registers ARM64 exposes for synchronous faults.
type FaultInfoARM64 struct {
	Vector uint64
	ESR    uint64 // exception syndrome register
	FAR    uintptr
}

// psrInterruptMask is PSTATE.I: when SET, IRQs are masked. This is the
// inverse polarity of x86-64's RFLAGS.IF, so ContextARM64.InterruptsEnabled
// negates the bit rather than testing it directly.
const psrInterruptMask = 1 << 7

// ContextARM64 is the packed on-stack layout the ARM64 stub saves and
// restores: 512 bytes of NEON state, X0..X30/SP/ELR/SPSR, then fault info,
// padded to a 16-byte multiple as the platform requires.
type ContextARM64 struct {
	NEON  [512]byte
	GP    GPRegistersARM64
	Fault FaultInfoARM64
	_     [8]byte // pad: struct above is 8 mod 16 without this
}

func (c *ContextARM64) Size() uintptr { return unsafe.Sizeof(ContextARM64{}) }

// Initialize implements Context. firstArg lands in X0, AArch64's first
// integer argument register. SP is 16-byte aligned per the AArch64 PCS;
// unlike x86-64 there is no implicit return-address push to compensate for,
// so no 8-byte adjustment is needed.
func (c *ContextARM64) Initialize(entry uintptr, codeSegment uint16, firstArg uint64, stackTop uintptr) {
	*c = ContextARM64{}
	_ = codeSegment // ARM64 has no code-segment selector; kept for interface symmetry.
	c.GP.X[0] = firstArg
	c.GP.ELR = entry
	c.GP.SP = alignDown(stackTop, stackAlignment)
	c.GP.SPSR = 0 // PSTATE.I clear: interrupts enabled.
}

func (c *ContextARM64) SimulatedRestore() (uintptr, uint64) {
	return c.GP.ELR, c.GP.X[0]
}

func (c *ContextARM64) StackPointer() uintptr { return c.GP.SP }

// DumpRegisters implements Context: X0..X30 in order, then SP/ELR/SPSR,
// then the fault syndrome registers.
func (c *ContextARM64) DumpRegisters(w RegisterWriter) {
	for i := range c.GP.X {
		w.WriteString(" x")
		w.WriteNumber(uint64(i))
		w.WriteString("=")
		w.WriteHex(c.GP.X[i])
	}
	regs := [...]struct {
		name string
		val  uint64
	}{
		{"sp", uint64(c.GP.SP)}, {"elr", uint64(c.GP.ELR)}, {"spsr", c.GP.SPSR},
		{"vector", c.Fault.Vector}, {"esr", c.Fault.ESR}, {"far", uint64(c.Fault.FAR)},
	}
	for _, r := range regs {
		w.WriteString(" ")
		w.WriteString(r.name)
		w.WriteString("=")
		w.WriteHex(r.val)
	}
}

func (c *ContextARM64) InterruptsEnabled() bool {
	return c.GP.SPSR&psrInterruptMask == 0
}
