package arch

import "unsafe"

// GPRegistersAMD64 is the fixed save order the x86-64 interrupt stub uses for
// general-purpose registers, scratch-first so the stub can push them with a
// single repeated instruction pattern.
type GPRegistersAMD64 struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RDI, RSI, RBP, RDX, RCX, RBX, RAX    uint64
}

// InterruptFrameAMD64 is the five-word frame the CPU itself pushes on an
// interrupt/exception, in the order it pushes them.
type InterruptFrameAMD64 struct {
	RIP    uintptr
	CS     uint64
	RFlags uint64
	RSP    uintptr
	SS     uint64
}

// FaultInfoAMD64 carries the vector the stub dispatched on plus whatever
// auxiliary fault data the CPU supplied for it.
type FaultInfoAMD64 struct {
	Vector    uint64
	ErrorCode uint64 // error code for exceptions that push one, else 0
	FaultAddr uintptr
}

// ContextAMD64 is the packed, sequential on-stack layout the x86-64 stub
// saves and restores: 256 bytes of SIMD state, the general-purpose
// registers in GPRegistersAMD64 order, fault info, a temp slot, then the
// CPU's own interrupt frame.
type ContextAMD64 struct {
	SIMD  [256]byte
	GP    GPRegistersAMD64
	Fault FaultInfoAMD64
	Temp  uint64
	Frame InterruptFrameAMD64
}

func (c *ContextAMD64) Size() uintptr { return unsafe.Sizeof(ContextAMD64{}) }

// Initialize implements Context. firstArg lands in RDI, the x86-64 System V
// ABI's first integer argument register. The stack is aligned to 16 bytes
// and then 8 is subtracted, because the CPU's own interrupt-frame push adds
// a return-address-sized word the callee expects as if from a `call`,
// matching the ABI's "16-byte aligned at function entry, after the return
// address is pushed" rule.
func (c *ContextAMD64) Initialize(entry uintptr, codeSegment uint16, firstArg uint64, stackTop uintptr) {
	*c = ContextAMD64{}
	c.GP.RDI = firstArg
	c.Frame.RIP = entry
	c.Frame.CS = uint64(codeSegment)
	c.Frame.RFlags = flagsInterruptEnable
	c.Frame.RSP = alignDown(stackTop, stackAlignment) - 8
	c.Frame.SS = 0
}

func (c *ContextAMD64) SimulatedRestore() (uintptr, uint64) {
	return c.Frame.RIP, c.GP.RDI
}

func (c *ContextAMD64) StackPointer() uintptr { return c.Frame.RSP }

// DumpRegisters implements Context: the general-purpose registers in their
// save order, then the CPU interrupt frame, then the fault data.
func (c *ContextAMD64) DumpRegisters(w RegisterWriter) {
	regs := [...]struct {
		name string
		val  uint64
	}{
		{"r15", c.GP.R15}, {"r14", c.GP.R14}, {"r13", c.GP.R13}, {"r12", c.GP.R12},
		{"r11", c.GP.R11}, {"r10", c.GP.R10}, {"r9", c.GP.R9}, {"r8", c.GP.R8},
		{"rdi", c.GP.RDI}, {"rsi", c.GP.RSI}, {"rbp", c.GP.RBP}, {"rdx", c.GP.RDX},
		{"rcx", c.GP.RCX}, {"rbx", c.GP.RBX}, {"rax", c.GP.RAX},
		{"rip", uint64(c.Frame.RIP)}, {"cs", c.Frame.CS}, {"rflags", c.Frame.RFlags},
		{"rsp", uint64(c.Frame.RSP)}, {"ss", c.Frame.SS},
		{"vector", c.Fault.Vector}, {"error", c.Fault.ErrorCode}, {"cr2", uint64(c.Fault.FaultAddr)},
	}
	for _, r := range regs {
		w.WriteString(" ")
		w.WriteString(r.name)
		w.WriteString("=")
		w.WriteHex(r.val)
	}
}

func (c *ContextAMD64) InterruptsEnabled() bool {
	return c.Frame.RFlags&flagsInterruptEnable != 0
}
