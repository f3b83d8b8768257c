package netcore

import (
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// SockStream wraps a descriptor as a pair of byte sinks. Blocking or
// non-blocking semantics are inherited from the descriptor; the stream
// borrows the fd by value and never owns it.
type SockStream struct {
	fd int
}

func NewSockStream(fd int) *SockStream {
	return &SockStream{fd: fd}
}

func (s *SockStream) Fd() int {
	return s.fd
}

// ReadSome reads whatever is available. It returns a positive byte count on
// success, (0, io.EOF) on clean peer close and (0, ErrWouldBlock) when a
// non-blocking read has nothing to deliver.
func (s *SockStream) ReadSome(buf []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return 0, ErrWouldBlock
			}
			return 0, os.NewSyscallError("read", err)
		}
		if n == 0 && len(buf) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// WriteSome writes at most once, returning how much the kernel took.
func (s *SockStream) WriteSome(buf []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return 0, ErrWouldBlock
			}
			return 0, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

// WriteFully retries on short writes until all bytes are sent or a
// non-transient error occurs. A would-block condition on a non-blocking
// descriptor yields the scheduler and retries.
func (s *SockStream) WriteFully(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.WriteSome(buf[total:])
		if err != nil {
			if err == ErrWouldBlock {
				runtime.Gosched()
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}
