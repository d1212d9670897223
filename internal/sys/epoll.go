//go:build linux

package sys

import (
	"time"

	"golang.org/x/sys/unix"
)

// Interest sets used by the reactor. Both are edge-triggered.
const (
	ListenerEvents uint32 = unix.EPOLLIN | unix.EPOLLET
	ConnEvents     uint32 = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET
)

// Readiness is the decoded event mask of one ready descriptor.
type Readiness struct {
	FD     int
	Events uint32
}

// Readable is true for input and for any hangup or error condition;
// in every case the next read reports what happened.
func (r Readiness) Readable() bool {
	return r.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0
}

func (r Readiness) Writable() bool {
	return r.Events&unix.EPOLLOUT != 0
}

// Epoll is the readiness facility.
type Epoll struct {
	fd     int
	events []unix.EpollEvent
}

// NewEpoll creates an epoll instance able to report up to maxEvents
// descriptors per wait.
func NewEpoll(maxEvents int) (*Epoll, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrap("epoll_create1", err)
	}
	return &Epoll{fd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

func (e *Epoll) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return wrap("epoll_ctl add", unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

func (e *Epoll) Modify(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return wrap("epoll_ctl mod", unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &ev))
}

func (e *Epoll) Delete(fd int) error {
	return wrap("epoll_ctl del", unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Wait blocks for at most timeout and appends the ready descriptors to
// dst. An interrupted wait returns an error that classifies as
// Interrupted.
func (e *Epoll) Wait(dst []Readiness, timeout time.Duration) ([]Readiness, error) {
	n, err := unix.EpollWait(e.fd, e.events, waitMillis(timeout))
	if err != nil {
		return dst, wrap("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		dst = append(dst, Readiness{FD: int(e.events[i].Fd), Events: e.events[i].Events})
	}
	return dst, nil
}

// waitMillis converts timeout to epoll_wait's milliseconds, rounding
// up so a sub-millisecond timeout still sleeps instead of polling.
// A negative timeout waits forever.
func waitMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

func (e *Epoll) Close() error {
	return wrap("close epoll", unix.Close(e.fd))
}
