package netcore

import (
	"golang.org/x/sys/unix"
)

// Notifier backend names accepted in configuration.
const (
	BackendLevelSet     = "level-set"
	BackendEdgeInterest = "edge-interest"
	BackendDualFilter   = "dual-filter"
	BackendAuto         = "auto"
)

const defEventsBufferSize = 64

// SocketEvent is one readiness record produced by a poller. Size carries the
// buffered byte count when the backend reports it (dual-filter only), Err the
// native errno for error records (0 when unavailable).
type SocketEvent struct {
	Fd   int
	Size int
	Err  int
}

// Poller is the unified readiness notifier over the native mechanisms.
// Error and hang-up conditions are observed implicitly on every backend.
//
// Poll blocks up to timeout seconds (negative = infinite, zero =
// non-blocking) and appends records to the three output lists. It returns
// the total number of events, 0 on timeout, and an error only on
// descriptor-table corruption or when the poller has been cleared.
type Poller interface {
	Add(fd int, writable bool) error
	Remove(fd int) error
	Count() int
	Clear()
	Poll(timeout float64, recv, send, errs *[]SocketEvent) (int, error)
}

// NewPoller opens a poller for the requested backend; BackendAuto picks the
// best native mechanism for this OS.
func NewPoller(backend string, maxConns int) (Poller, error) {
	if maxConns <= 0 {
		return nil, invalidSocket
	}
	if backend == "" || backend == BackendAuto {
		backend = defaultBackend()
	}
	switch backend {
	case BackendLevelSet:
		return newSelectPoller(maxConns)
	case BackendEdgeInterest:
		return newEdgePoller(maxConns)
	case BackendDualFilter:
		return newDualPoller(maxConns)
	default:
		return nil, unsupportedBackend
	}
}

// getSocketErrno drains the pending socket error, 0 when none can be read.
func getSocketErrno(fd int) int {
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0
	}
	return code
}
