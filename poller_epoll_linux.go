//go:build linux
// +build linux

package netcore

import (
	"os"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN | unix.EPOLLET
	writeEvents = unix.EPOLLOUT
	errorEvents = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

// epollPoller is the edge-triggered interest-list backend. Every accepted
// descriptor is switched to non-blocking mode so handlers can drain until
// the would-block condition.
type epollPoller struct {
	fd       int
	maxConns int
	interest map[int]struct{}
	events   []unix.EpollEvent
}

func newEdgePoller(maxConns int) (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	bufferSize := maxConns
	if bufferSize > defEventsBufferSize {
		bufferSize = defEventsBufferSize
	}
	return &epollPoller{
		fd:       fd,
		maxConns: maxConns,
		interest: make(map[int]struct{}, maxConns),
		events:   make([]unix.EpollEvent, bufferSize),
	}, nil
}

func newDualPoller(maxConns int) (Poller, error) {
	return nil, unsupportedBackend
}

func defaultBackend() string {
	return BackendEdgeInterest
}

func (p *epollPoller) Add(fd int, writable bool) error {
	if p.fd < 0 {
		return pollerClosed
	}
	if len(p.interest) >= p.maxConns {
		return manageFull
	}
	err := unix.SetNonblock(fd, true)
	if err != nil {
		return os.NewSyscallError("fcntl O_NONBLOCK", err)
	}
	events := uint32(readEvents | errorEvents)
	if writable {
		events |= writeEvents
	}
	err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
	if err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	p.interest[fd] = struct{}{}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if p.fd < 0 {
		return nil
	}
	delete(p.interest, fd)
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (p *epollPoller) Count() int {
	return len(p.interest)
}

func (p *epollPoller) Clear() {
	if p.fd < 0 {
		return
	}
	err := unix.Close(p.fd)
	if err != nil {
		log.Error().Msgf("got error while closing epoll: %+v", err)
	}
	p.fd = -1
	p.interest = make(map[int]struct{})
}

func (p *epollPoller) Poll(timeout float64, recv, send, errs *[]SocketEvent) (int, error) {
	if p.fd < 0 {
		return 0, pollerClosed
	}
	msec := -1
	if timeout >= 0 {
		msec = int(timeout * 1000)
	}
	evCount, err := epollWait(p.fd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if err == unix.EBADF || err == unix.EINVAL || err == unix.EFAULT {
			return 0, os.NewSyscallError("epoll_wait", err)
		}
		log.Error().Msgf("got error while waiting for epoll events: %+v", err)
		return 0, nil
	}
	total := 0
	for i := 0; i < evCount; i++ {
		event := p.events[i]
		fd := int(event.Fd)
		if log.Debug().Enabled() {
			log.Debug().Msgf("[%d] epoll event:%d", fd, event.Events)
		}
		// A hang-up usually arrives together with the last readable bytes;
		// the fd then shows up in both the recv and the error partitions,
		// and the dispatch order lets the bytes drain first.
		if event.Events&(unix.EPOLLIN|unix.EPOLLPRI) > 0 {
			*recv = append(*recv, SocketEvent{Fd: fd})
			total++
		}
		if event.Events&writeEvents > 0 {
			*send = append(*send, SocketEvent{Fd: fd})
			total++
		}
		if event.Events&errorEvents > 0 {
			*errs = append(*errs, SocketEvent{Fd: fd, Err: getSocketErrno(fd)})
			total++
		}
	}
	return total, nil
}

func epollWait(epfd int, events []unix.EpollEvent, msec int) (n int, err error) {
	var r0 uintptr
	var _p0 = unsafe.Pointer(&events[0])
	var errno syscall.Errno
	if msec == 0 {
		r0, _, errno = syscall.RawSyscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epfd), uintptr(_p0), uintptr(len(events)), 0, 0, 0)
	} else {
		r0, _, errno = syscall.Syscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epfd), uintptr(_p0), uintptr(len(events)), uintptr(msec), 0, 0)
	}
	if errno != 0 {
		return 0, errno
	}
	return int(r0), nil
}
