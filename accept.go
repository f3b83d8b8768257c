package netcore

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const (
	defAcceptTimeoutSec = 60.0
	defOverloadWaitSec  = 10.0
)

// AcceptServer owns a listening socket and produces accepted descriptors one
// at a time. Multiple acceptor threads may call Accept concurrently against
// the same server; the kernel serializes the accept itself. The listening
// descriptor is immutable after construction; Close flips an atomic flag and
// releases the kernel slot exactly once, which also unblocks pending waits.
type AcceptServer struct {
	fd     int
	closed *atomic.Bool
	addr   *Address

	ipstrMu sync.Mutex
	ipstr   []byte // reusable printable-address buffer

	acceptTimeout float64
	overloadWait  float64
}

// NewAcceptServer creates, binds and listens. The bound address is read back
// from the kernel, so binding port zero yields the real ephemeral port.
func NewAcceptServer(addr *Address, maxListen int, reuse, ipv6Only bool) (*AcceptServer, error) {
	InitNetwork()
	family := unix.AF_INET
	if addr.IsIPv6() {
		family = unix.AF_INET6
	}
	sock, err := NewSocket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		CloseNetwork()
		return nil, err
	}
	if ipv6Only && addr.IsIPv6() {
		err = SetIPv6Only(sock.Fd(), true)
		if err != nil {
			sock.Close()
			CloseNetwork()
			return nil, err
		}
	}
	err = addr.Bind(sock.Fd(), reuse)
	if err != nil {
		sock.Close()
		CloseNetwork()
		return nil, err
	}
	err = unix.Listen(sock.Fd(), maxListen)
	if err != nil {
		sock.Close()
		CloseNetwork()
		return nil, os.NewSyscallError("listen", err)
	}
	bound, err := LocalOf(sock.Fd())
	if err != nil {
		bound = addr.Clone()
	}
	return &AcceptServer{
		fd:            sock.Release(),
		closed:        atomic.NewBool(false),
		addr:          bound,
		acceptTimeout: defAcceptTimeoutSec,
		overloadWait:  defOverloadWaitSec,
	}, nil
}

// Addr is the address the listener is actually bound to.
func (s *AcceptServer) Addr() *Address {
	return s.addr
}

func (s *AcceptServer) Fd() int {
	return s.fd
}

// SetAcceptTimeout bounds how long one Accept call waits for readability.
// Zero disables the pre-wait, so Accept blocks in the kernel.
func (s *AcceptServer) SetAcceptTimeout(sec float64) {
	s.acceptTimeout = sec
}

func (s *AcceptServer) SetOverloadWait(sec float64) {
	s.overloadWait = sec
}

// CreateAddressPool produces recyclable address slots for an acceptor thread.
func (s *AcceptServer) CreateAddressPool(count int) []*Address {
	return s.addr.CreateAddressPool(count)
}

// Accept tries to take one connection. It returns (nil, nil) when nothing
// arrived within the accept timeout or a transient error occurred, an owned
// handle on success and an error only on unrecoverable failures.
func (s *AcceptServer) Accept(out *Address) (*SockHandle, error) {
	if s.closed.Load() {
		return nil, invalidSocket
	}
	if s.acceptTimeout > 0 {
		ready, err := waitReadable(s.fd, s.acceptTimeout)
		if err != nil {
			if s.closed.Load() {
				return nil, invalidSocket
			}
			return nil, err
		}
		if !ready {
			return nil, nil
		}
	}
	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		if s.closed.Load() {
			return nil, invalidSocket
		}
		errno, ok := err.(unix.Errno)
		if !ok {
			return nil, os.NewSyscallError("accept", err)
		}
		switch classifyAcceptErrno(errno) {
		case 0, CodeAgain, CodeInterrupted, CodeTimedOut:
			return nil, nil
		case CodeExhausted:
			log.Error().Msgf("accept overload, errno=%d, backing off %.0fs", int(errno), s.overloadWait)
			time.Sleep(time.Duration(s.overloadWait * float64(time.Second)))
			return nil, nil
		default:
			log.Error().Msgf("got error while accepting connection, errno=%d", int(errno))
			return nil, os.NewSyscallError("accept", err)
		}
	}
	unix.CloseOnExec(nfd)
	if out != nil {
		out.setFromSockaddr(sa)
		s.ipstrMu.Lock()
		s.ipstr = out.AppendText(s.ipstr)
		log.Info().Msgf("accepted connection from %s, sock:%d", s.ipstr, nfd)
		s.ipstrMu.Unlock()
	}
	return NewSockHandle(nfd), nil
}

// Close shuts the listener down exactly once. Safe to call from another
// goroutine to unblock a pending Accept.
func (s *AcceptServer) Close() {
	if !s.closed.CAS(false, true) {
		return
	}
	// A bare close does not wake a select or accept already blocked on the
	// descriptor in another thread; shutting it down first does.
	_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
	err := unix.Close(s.fd)
	if err != nil {
		log.Error().Msgf("got error while closing listener fd %d: %+v", s.fd, err)
	}
	CloseNetwork()
}

// classifyAcceptErrno sorts accept errnos into transient, overload and
// fatal buckets.
func classifyAcceptErrno(errno unix.Errno) int {
	switch errno {
	case 0:
		return 0
	case unix.EAGAIN, unix.ECONNABORTED:
		return CodeAgain
	case unix.EINTR:
		return CodeInterrupted
	case unix.ETIMEDOUT:
		return CodeTimedOut
	case unix.EMFILE, unix.ENFILE:
		return CodeExhausted
	case unix.EBADF, unix.EINVAL, unix.ENOTSOCK:
		return CodeInvalid
	default:
		return CodeOSErr
	}
}

// waitReadable waits up to timeout seconds for the descriptor to become
// readable. The timeval is rebuilt per call; the kernel clobbers it.
func waitReadable(fd int, timeout float64) (bool, error) {
	var rset unix.FdSet
	rset.Set(fd)
	tv := timevalFromSeconds(timeout)
	n, err := unix.Select(fd+1, &rset, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, os.NewSyscallError("select", err)
	}
	return n > 0, nil
}
