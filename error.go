package netcore

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Negative result codes returned by connection event handlers and by errno
// classification. Zero and positive values always mean byte counts.
const (
	CodeAgain       = -2 // no progress right now, wait for next readiness
	CodeInterrupted = -3 // system call interrupted, retry
	CodeTimedOut    = -4 // configured timeout expired
	CodePeerClosed  = -5 // orderly remote shutdown
	CodeBrokenPipe  = -6 // write to closed remote
	CodeExhausted   = -7 // file table full or memory pressure
	CodeInvalid     = -8 // bad address or bad fd
	CodeOSErr       = -9 // anything else, native errno attached to the event
)

var ErrWouldBlock = errors.New("operation would block")

var (
	duplicateSocket    = errors.New("socket fd already joined")
	manageFull         = errors.New("connection manage is full")
	invalidSocket      = errors.New("invalid socket")
	pollerClosed       = errors.New("poller is closed")
	unsupportedBackend = errors.New("unsupported notifier backend")
	foreignGoroutine   = errors.New("manage used from a foreign goroutine")
	badAddressText     = errors.New("can't parse address text")
)

// ClassifyErrno maps a native errno onto the result code vocabulary.
func ClassifyErrno(errno unix.Errno) int {
	switch errno {
	case 0:
		return 0
	case unix.EAGAIN:
		return CodeAgain
	case unix.EINTR:
		return CodeInterrupted
	case unix.ETIMEDOUT:
		return CodeTimedOut
	case unix.EPIPE, unix.ECONNRESET, unix.ESHUTDOWN:
		return CodeBrokenPipe
	case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		return CodeExhausted
	case unix.EBADF, unix.EINVAL, unix.EFAULT, unix.ENOTSOCK, unix.EAFNOSUPPORT:
		return CodeInvalid
	default:
		return CodeOSErr
	}
}

// CodeOf maps an error returned by the stream layer onto a result code.
// A nil error maps to zero.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	if err == io.EOF {
		return CodePeerClosed
	}
	if err == ErrWouldBlock {
		return CodeAgain
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return ClassifyErrno(errno)
	}
	var sys *os.SyscallError
	if errors.As(err, &sys) {
		if errno, ok := sys.Err.(unix.Errno); ok {
			return ClassifyErrno(errno)
		}
	}
	return CodeOSErr
}
