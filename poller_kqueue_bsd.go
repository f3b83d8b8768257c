//go:build darwin || freebsd
// +build darwin freebsd

package netcore

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// kqueuePoller is the dual-filter event queue backend. Read and write
// interest live in separate filter entries; writable interest is optional
// and off by default. Level-triggered.
type kqueuePoller struct {
	fd       int
	maxConns int
	interest map[int]bool // fd -> writable interest
	events   []unix.Kevent_t
}

func newDualPoller(maxConns int) (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	return &kqueuePoller{
		fd:       fd,
		maxConns: maxConns,
		interest: make(map[int]bool, maxConns),
		events:   make([]unix.Kevent_t, maxConns),
	}, nil
}

func newEdgePoller(maxConns int) (Poller, error) {
	return nil, unsupportedBackend
}

func defaultBackend() string {
	return BackendDualFilter
}

func (p *kqueuePoller) Add(fd int, writable bool) error {
	if p.fd < 0 {
		return pollerClosed
	}
	if len(p.interest) >= p.maxConns {
		return manageFull
	}
	changes := make([]unix.Kevent_t, 0, 2)
	changes = append(changes, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	})
	if writable {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_ADD | unix.EV_ENABLE,
		})
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	if err != nil {
		return os.NewSyscallError("kevent add", err)
	}
	p.interest[fd] = writable
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	if p.fd < 0 {
		return nil
	}
	writable, ok := p.interest[fd]
	if !ok {
		return nil
	}
	delete(p.interest, fd)
	changes := make([]unix.Kevent_t, 0, 2)
	changes = append(changes, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	})
	if writable {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_DELETE,
		})
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return os.NewSyscallError("kevent del", err)
	}
	return nil
}

func (p *kqueuePoller) Count() int {
	return len(p.interest)
}

func (p *kqueuePoller) Clear() {
	if p.fd < 0 {
		return
	}
	err := unix.Close(p.fd)
	if err != nil {
		log.Error().Msgf("got error while closing kqueue: %+v", err)
	}
	p.fd = -1
	p.interest = make(map[int]bool)
}

func (p *kqueuePoller) Poll(timeout float64, recv, send, errs *[]SocketEvent) (int, error) {
	if p.fd < 0 {
		return 0, pollerClosed
	}
	if len(p.interest) == 0 {
		return 0, nil
	}
	var tsp *unix.Timespec
	if timeout >= 0 {
		ts := unix.NsecToTimespec(int64(timeout * 1e9))
		tsp = &ts
	}
	evCount, err := unix.Kevent(p.fd, nil, p.events, tsp)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if err == unix.EBADF || err == unix.EINVAL || err == unix.EFAULT {
			return 0, os.NewSyscallError("kevent", err)
		}
		log.Error().Msgf("got error while waiting for kqueue events: %+v", err)
		return 0, nil
	}
	total := 0
	for i := 0; i < evCount; i++ {
		event := p.events[i]
		fd := int(event.Ident)
		if event.Flags&unix.EV_ERROR != 0 {
			*errs = append(*errs, SocketEvent{Fd: fd, Err: int(event.Data)})
			total++
			continue
		}
		if event.Filter == unix.EVFILT_READ {
			*recv = append(*recv, SocketEvent{Fd: fd, Size: int(event.Data)})
			total++
		} else if event.Filter == unix.EVFILT_WRITE {
			*send = append(*send, SocketEvent{Fd: fd, Size: int(event.Data)})
			total++
		}
		// A hang-up arrives as EV_EOF on the filter; the fd then also goes
		// into the error partition, after any pending bytes.
		if event.Flags&unix.EV_EOF != 0 {
			*errs = append(*errs, SocketEvent{Fd: fd, Err: int(event.Fflags)})
			total++
		}
	}
	return total, nil
}
