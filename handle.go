package netcore

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// SockHandle owns a kernel socket file descriptor. At most one live owner;
// the kernel slot is released exactly once, no matter how control leaves the
// owning code path. -1 denotes an invalid handle.
type SockHandle struct {
	fd int
}

func NewSockHandle(fd int) *SockHandle {
	return &SockHandle{fd: fd}
}

func InvalidSockHandle() *SockHandle {
	return &SockHandle{fd: -1}
}

func (h *SockHandle) Fd() int {
	return h.fd
}

func (h *SockHandle) IsValid() bool {
	return h.fd >= 0
}

// Release yields the raw descriptor and voids ownership.
func (h *SockHandle) Release() int {
	fd := h.fd
	h.fd = -1
	return fd
}

// Reset swaps in another descriptor, closing any previous one.
func (h *SockHandle) Reset(fd int) {
	if h.fd == fd {
		return
	}
	h.Close()
	h.fd = fd
}

// Close is idempotent.
func (h *SockHandle) Close() {
	if h.fd < 0 {
		return
	}
	err := unix.Close(h.fd)
	if err != nil {
		log.Error().Msgf("got error while closing socket fd %d: %+v", h.fd, err)
	}
	h.fd = -1
}
