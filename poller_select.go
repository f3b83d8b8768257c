package netcore

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// selectPoller is the level-triggered bitmap backend, used when no advanced
// mechanism exists. Descriptor values must fit the select bitmap.
type selectPoller struct {
	maxConns int
	closed   bool
	interest map[int]bool // fd -> writable interest
}

func newSelectPoller(maxConns int) (Poller, error) {
	return &selectPoller{
		maxConns: maxConns,
		interest: make(map[int]bool, maxConns),
	}, nil
}

func (p *selectPoller) Add(fd int, writable bool) error {
	if p.closed {
		return pollerClosed
	}
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return invalidSocket
	}
	if len(p.interest) >= p.maxConns {
		return manageFull
	}
	p.interest[fd] = writable
	return nil
}

func (p *selectPoller) Remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func (p *selectPoller) Count() int {
	return len(p.interest)
}

func (p *selectPoller) Clear() {
	p.interest = make(map[int]bool)
	p.closed = true
}

func (p *selectPoller) Poll(timeout float64, recv, send, errs *[]SocketEvent) (int, error) {
	if p.closed {
		return 0, pollerClosed
	}
	if len(p.interest) == 0 {
		return 0, nil
	}

	var rset, wset, eset unix.FdSet
	maxFd := 0
	wantSend := false
	for fd, writable := range p.interest {
		rset.Set(fd)
		eset.Set(fd)
		if writable {
			wset.Set(fd)
			wantSend = true
		}
		if fd > maxFd {
			maxFd = fd
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		v := timevalFromSeconds(timeout)
		tv = &v
	}
	wsetArg := &wset
	if !wantSend {
		wsetArg = nil
	}

	n, err := unix.Select(maxFd+1, &rset, wsetArg, &eset, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if err == unix.EBADF || err == unix.EINVAL || err == unix.EFAULT {
			return 0, os.NewSyscallError("select", err)
		}
		log.Error().Msgf("got error while selecting sockets: %+v", err)
		return 0, nil
	}
	if n <= 0 {
		return 0, nil
	}

	total := 0
	for fd, writable := range p.interest {
		if rset.IsSet(fd) {
			*recv = append(*recv, SocketEvent{Fd: fd})
			total++
		}
		if writable && wset.IsSet(fd) {
			*send = append(*send, SocketEvent{Fd: fd})
			total++
		}
		if eset.IsSet(fd) {
			*errs = append(*errs, SocketEvent{Fd: fd, Err: getSocketErrno(fd)})
			total++
		}
	}
	return total, nil
}
