package netcore

import (
	"testing"

	"golang.org/x/sys/unix"
)

func fdAlive(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func newTestSocket(t *testing.T) *SockHandle {
	t.Helper()
	h, err := NewSocket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		t.Fatalf("NewSocket error: %+v", err)
	}
	return h
}

func TestSockHandleCloseIdempotent(t *testing.T) {
	h := newTestSocket(t)
	fd := h.Fd()
	if !fdAlive(fd) {
		t.Fatal("fresh socket fd is not alive")
	}
	h.Close()
	if h.IsValid() {
		t.Error("handle still valid after Close")
	}
	if fdAlive(fd) {
		t.Error("kernel fd still alive after Close")
	}
	h.Close() // second close must be a no-op
}

func TestSockHandleRelease(t *testing.T) {
	h := newTestSocket(t)
	fd := h.Release()
	if h.IsValid() {
		t.Error("handle still valid after Release")
	}
	if !fdAlive(fd) {
		t.Error("released fd was closed")
	}
	h.Close() // owns nothing, must not touch the released fd
	if !fdAlive(fd) {
		t.Error("Close on a released handle closed the raw fd")
	}
	unix.Close(fd)
}

func TestSockHandleReset(t *testing.T) {
	h := newTestSocket(t)
	first := h.Fd()
	other := newTestSocket(t)
	otherFd := other.Release()

	h.Reset(otherFd)
	if fdAlive(first) {
		t.Error("Reset did not close the previous fd")
	}
	if h.Fd() != otherFd {
		t.Errorf("Reset installed fd %d, want %d", h.Fd(), otherFd)
	}
	h.Close()
}

func TestSetBlocking(t *testing.T) {
	h := newTestSocket(t)
	defer h.Close()

	err := SetBlocking(h.Fd(), false, 0, 0)
	if err != nil {
		t.Fatalf("SetBlocking error: %+v", err)
	}
	nonblock, err := isNonblock(h.Fd())
	if err != nil {
		t.Fatalf("isNonblock error: %+v", err)
	}
	if !nonblock {
		t.Error("descriptor not in non-blocking mode")
	}

	err = SetBlocking(h.Fd(), true, 1.5, 2.25)
	if err != nil {
		t.Fatalf("SetBlocking error: %+v", err)
	}
	nonblock, _ = isNonblock(h.Fd())
	if nonblock {
		t.Error("descriptor still non-blocking")
	}
	tv, err := unix.GetsockoptTimeval(h.Fd(), unix.SOL_SOCKET, unix.SO_RCVTIMEO)
	if err != nil {
		t.Fatalf("GetsockoptTimeval error: %+v", err)
	}
	if tv.Sec != 2 || tv.Usec != 250000 {
		t.Errorf("SO_RCVTIMEO = %d.%06d, want 2.250000", tv.Sec, tv.Usec)
	}
}

func TestTimevalFromSeconds(t *testing.T) {
	tv := timevalFromSeconds(0)
	if tv.Sec != 0 || tv.Usec != 0 {
		t.Error("zero duration must mean no timeout")
	}
	tv = timevalFromSeconds(1.5)
	if tv.Sec != 1 || tv.Usec != 500000 {
		t.Errorf("timeval = %d.%06d, want 1.500000", tv.Sec, tv.Usec)
	}
}

func TestRecreate(t *testing.T) {
	h := newTestSocket(t)
	defer h.Close()
	addr, err := ParseAddress("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ParseAddress error: %+v", err)
	}
	err = addr.Bind(h.Fd(), false)
	if err != nil {
		t.Fatalf("Bind error: %+v", err)
	}
	old := h.Fd()

	err = Recreate(h, unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP, false, 0, 0)
	if err != nil {
		t.Fatalf("Recreate error: %+v", err)
	}
	if fdAlive(old) && h.Fd() == old {
		t.Error("Recreate kept the previous descriptor")
	}
	nonblock, _ := isNonblock(h.Fd())
	if !nonblock {
		t.Error("Recreate did not re-apply blocking mode")
	}
	// The fresh socket must not be bound; binding explicitly must work.
	err = addr.Bind(h.Fd(), true)
	if err != nil {
		t.Errorf("fresh socket refused an explicit bind: %+v", err)
	}
}
