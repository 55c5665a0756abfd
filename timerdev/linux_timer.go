//go:build linux

package timerdev

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// LinuxTimer is a periodic timer backed by timerfd, polled through a
// dedicated epoll instance: EpollCreate1 / EpollCtl / EpollWait, narrowed
// from "poll many registered fds" to "block until the one timerfd fires."
type LinuxTimer struct {
	fd         int
	epfd       int
	intervalNS uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLinuxTimer returns an unstarted LinuxTimer.
func NewLinuxTimer() *LinuxTimer {
	return &LinuxTimer{fd: -1, epfd: -1}
}

func (t *LinuxTimer) Start(intervalNS uint64) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return fmt.Errorf("timerdev: timerfd_create: %w", err)
	}

	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(intervalNS)),
		Value:    unix.NsecToTimespec(int64(intervalNS)),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("timerdev: timerfd_settime: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("timerdev: epoll_create1: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(epfd)
		return fmt.Errorf("timerdev: epoll_ctl: %w", err)
	}

	t.fd = fd
	t.epfd = epfd
	t.intervalNS = intervalNS
	t.stopCh = make(chan struct{})
	return nil
}

func (t *LinuxTimer) Stop() error {
	t.stopOnce.Do(func() { close(t.stopCh) })

	var errFD, errEP error
	if t.fd >= 0 {
		errFD = unix.Close(t.fd)
		t.fd = -1
	}
	if t.epfd >= 0 {
		errEP = unix.Close(t.epfd)
		t.epfd = -1
	}
	if errFD != nil {
		return errFD
	}
	return errEP
}

func (t *LinuxTimer) Wait() (uint64, bool) {
	select {
	case <-t.stopCh:
		return 0, false
	default:
	}

	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(t.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, false
		}
		if n == 0 {
			continue
		}
		break
	}

	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil || n != 8 {
		return 0, false
	}

	expirations := binary.LittleEndian.Uint64(buf[:])
	if expirations == 0 {
		expirations = 1
	}
	return expirations * t.intervalNS, true
}
