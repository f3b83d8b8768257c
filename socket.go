package netcore

import (
	"os"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

var networkRefs = atomic.NewInt32(0)

// InitNetwork brings up the process-wide socket subsystem. Idempotent and
// refcounted; a no-op on unix beyond the bookkeeping, kept so listener
// construction has a single well defined entry point on every platform.
func InitNetwork() {
	if networkRefs.Inc() == 1 {
		log.Debug().Msg("network subsystem initialized")
	}
}

// CloseNetwork tears the subsystem down once the last user is gone.
func CloseNetwork() {
	if networkRefs.Dec() == 0 {
		log.Debug().Msg("network subsystem closed")
	}
}

// NewSocket creates a stream socket for the given family/type/protocol and
// hands its descriptor over as an owned handle.
func NewSocket(family, sotype, proto int) (*SockHandle, error) {
	fd, err := unix.Socket(family, sotype|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	return NewSockHandle(fd), nil
}

// SetBlocking toggles the descriptor's non-blocking flag and installs send
// and receive timeouts in one step. A zero duration means no timeout. When
// installing a timeout fails the blocking flag is reverted, so the two
// settings never disagree.
func SetBlocking(fd int, blocking bool, sendTimeout, recvTimeout float64) error {
	wasNonblock, err := isNonblock(fd)
	if err != nil {
		return err
	}
	err = unix.SetNonblock(fd, !blocking)
	if err != nil {
		return os.NewSyscallError("fcntl O_NONBLOCK", err)
	}
	sndTv := timevalFromSeconds(sendTimeout)
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &sndTv)
	if err == nil {
		rcvTv := timevalFromSeconds(recvTimeout)
		err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &rcvTv)
	}
	if err != nil {
		revertErr := unix.SetNonblock(fd, wasNonblock)
		if revertErr != nil {
			log.Error().Msgf("got error while reverting O_NONBLOCK on fd %d: %+v", fd, revertErr)
		}
		return os.NewSyscallError("setsockopt SO_SNDTIMEO/SO_RCVTIMEO", err)
	}
	return nil
}

func isNonblock(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, os.NewSyscallError("fcntl F_GETFL", err)
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

func timevalFromSeconds(sec float64) unix.Timeval {
	if sec <= 0 {
		return unix.Timeval{}
	}
	usec := int64(sec * 1e6)
	return unix.Timeval{
		Sec:  usec / 1e6,
		Usec: usec % 1e6,
	}
}

// Recreate closes the current descriptor and swaps in a fresh one of the
// same family/type/protocol, re-applying blocking mode and timeouts. The
// new socket is NOT bound; the caller binds explicitly.
func Recreate(h *SockHandle, family, sotype, proto int, blocking bool, sendTimeout, recvTimeout float64) error {
	fresh, err := NewSocket(family, sotype, proto)
	if err != nil {
		return err
	}
	err = SetBlocking(fresh.Fd(), blocking, sendTimeout, recvTimeout)
	if err != nil {
		fresh.Close()
		return err
	}
	h.Reset(fresh.Release())
	return nil
}
