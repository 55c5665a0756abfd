// Package serial implements the UART collaborator used only by the panic
// path and boot logging. Every write is byte-synchronous and
// allocation-free, so it is safe to call from the panic path after a fatal
// exception with the heap in an unknown state.
package serial
