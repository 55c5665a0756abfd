//go:build linux || darwin

package serial

import "golang.org/x/sys/unix"

// Writer is the UART collaborator contract: write_byte, write_string,
// write_hex, write_number.
type Writer interface {
	WriteByte(b byte)
	WriteString(s string)
	WriteHex(v uint64)
	WriteNumber(v uint64)
}

const hexDigits = "0123456789abcdef"

// UART writes directly to a file descriptor via raw unix.Write calls.
// It also implements io.Writer
// so it can back package klog's structured log sink.
type UART struct {
	fd int
}

// NewUART wraps an already-open file descriptor (a real serial port, or a
// pipe/file in tests and the host demo).
func NewUART(fd int) *UART {
	return &UART{fd: fd}
}

// Write implements io.Writer.
func (u *UART) Write(p []byte) (int, error) {
	return unix.Write(u.fd, p)
}

// WriteByte writes a single byte, synchronously.
func (u *UART) WriteByte(b byte) {
	var buf [1]byte
	buf[0] = b
	_, _ = unix.Write(u.fd, buf[:])
}

// WriteString writes s one byte at a time; it never converts s to a new
// []byte, so it allocates nothing.
func (u *UART) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		u.WriteByte(s[i])
	}
}

// WriteHex writes v as "0x" followed by 16 lowercase hex digits.
func (u *UART) WriteHex(v uint64) {
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	u.WriteString("0x")
	for _, b := range buf {
		u.WriteByte(b)
	}
}

// WriteNumber writes v in decimal, with no leading zeroes.
func (u *UART) WriteNumber(v uint64) {
	if v == 0 {
		u.WriteByte('0')
		return
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	for _, b := range buf[i:] {
		u.WriteByte(b)
	}
}
