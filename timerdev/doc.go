// Package timerdev implements the timer device collaborator: programmed
// at init to raise an interrupt at a chosen frequency, each tick
// reporting elapsed nanoseconds since the previous one. LinuxTimer is
// backed by timerfd+epoll; Fake is a deterministic, test-driven
// implementation with no real clock involved.
package timerdev
