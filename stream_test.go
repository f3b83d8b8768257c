package netcore

import (
	"bytes"
	"io"
	"testing"

	"golang.org/x/sys/unix"
)

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair error: %+v", err)
	}
	return fds[0], fds[1]
}

func TestStreamReadWrite(t *testing.T) {
	a, b := newSocketPair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	in := NewSockStream(a)
	out := NewSockStream(b)

	payload := []byte("PING\n")
	n, err := out.WriteSome(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("WriteSome = (%d, %v)", n, err)
	}

	buf := make([]byte, 64)
	n, err = in.ReadSome(buf)
	if err != nil {
		t.Fatalf("ReadSome error: %+v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("read %q, want %q", buf[:n], payload)
	}
}

func TestStreamWouldBlock(t *testing.T) {
	a, b := newSocketPair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	err := unix.SetNonblock(a, true)
	if err != nil {
		t.Fatalf("SetNonblock error: %+v", err)
	}
	in := NewSockStream(a)
	buf := make([]byte, 16)
	n, err := in.ReadSome(buf)
	if err != ErrWouldBlock {
		t.Errorf("empty non-blocking read = (%d, %v), want ErrWouldBlock", n, err)
	}
}

func TestStreamPeerClose(t *testing.T) {
	a, b := newSocketPair(t)
	defer unix.Close(a)

	out := NewSockStream(b)
	_, err := out.WriteSome([]byte("HELLO"))
	if err != nil {
		t.Fatalf("WriteSome error: %+v", err)
	}
	unix.Close(b)

	in := NewSockStream(a)
	buf := make([]byte, 16)
	n, err := in.ReadSome(buf)
	if err != nil || n != 5 {
		t.Fatalf("first ReadSome = (%d, %v), want (5, nil)", n, err)
	}
	n, err = in.ReadSome(buf)
	if err != io.EOF {
		t.Errorf("second ReadSome = (%d, %v), want io.EOF", n, err)
	}
	if CodeOf(err) != CodePeerClosed {
		t.Errorf("CodeOf(EOF) = %d, want %d", CodeOf(err), CodePeerClosed)
	}
}

func TestWriteFully(t *testing.T) {
	a, b := newSocketPair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	err := unix.SetNonblock(b, true)
	if err != nil {
		t.Fatalf("SetNonblock error: %+v", err)
	}
	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan []byte)
	go func() {
		in := NewSockStream(a)
		got := make([]byte, 0, len(payload))
		buf := make([]byte, 64*1024)
		for len(got) < len(payload) {
			n, err := in.ReadSome(buf)
			if err != nil {
				break
			}
			got = append(got, buf[:n]...)
		}
		done <- got
	}()

	out := NewSockStream(b)
	n, err := out.WriteFully(payload)
	if err != nil {
		t.Fatalf("WriteFully error: %+v", err)
	}
	if n != len(payload) {
		t.Fatalf("WriteFully wrote %d of %d", n, len(payload))
	}
	got := <-done
	if !bytes.Equal(got, payload) {
		t.Error("payload corrupted in transit")
	}
}

func TestWriteBrokenPipe(t *testing.T) {
	a, b := newSocketPair(t)
	unix.Close(a)
	defer unix.Close(b)

	out := NewSockStream(b)
	var err error
	// The first write may land in the kernel buffer before the reset is
	// observed; a second one must fail.
	for i := 0; i < 3 && err == nil; i++ {
		_, err = out.WriteSome([]byte("data"))
	}
	if err == nil {
		t.Fatal("write to a closed peer did not fail")
	}
	if CodeOf(err) != CodeBrokenPipe {
		t.Errorf("CodeOf = %d, want %d", CodeOf(err), CodeBrokenPipe)
	}
}
