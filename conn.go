package netcore

import (
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// EventConn is the capability contract a connection brings to the manage
// loop. Embed TCPAccept to get the bookkeeping plus default handlers, then
// shadow the events the connection actually implements.
//
// OnRecv and OnSend return bytes consumed, 0 when nothing was available
// (a spurious wakeup on an edge-triggered backend) and a negative result
// code on fatal. On an edge-triggered backend OnRecv must drain the socket
// until the would-block condition before returning.
type EventConn interface {
	Core() *TCPAccept
	OnRecv(maxSize int, now float64) int
	OnSend(maxSize int) int
	OnError(code int)
	OnClose()
	OnUpdate(now float64) bool
}

// TCPAccept is an accepted stream endpoint: the owned descriptor, its remote
// address, the receive deadline bookkeeping and the cumulative byte
// counters. Counters are atomics so stats can be read outside the owner
// thread; everything else is owner-thread only.
type TCPAccept struct {
	sock     *SockHandle
	addr     *Address
	stream   *SockStream
	wantSend bool

	recvTimeout float64
	lastRecv    float64

	sendTotal *atomic.Int64
	recvTotal *atomic.Int64
}

func NewTCPAccept(sock *SockHandle, addr *Address) *TCPAccept {
	return &TCPAccept{
		sock:      sock,
		addr:      addr,
		stream:    NewSockStream(sock.Fd()),
		sendTotal: atomic.NewInt64(0),
		recvTotal: atomic.NewInt64(0),
	}
}

func (c *TCPAccept) Core() *TCPAccept { return c }

func (c *TCPAccept) Fd() int {
	return c.sock.Fd()
}

func (c *TCPAccept) Socket() *SockHandle {
	return c.sock
}

func (c *TCPAccept) RemoteAddr() *Address {
	return c.addr
}

// Stream returns the byte-sink view of the descriptor.
func (c *TCPAccept) Stream() *SockStream {
	return c.stream
}

func (c *TCPAccept) SetRecvTimeout(sec float64) {
	c.recvTimeout = sec
}

func (c *TCPAccept) RecvTimeout() float64 {
	return c.recvTimeout
}

// Touch records a successful receive at the given time.
func (c *TCPAccept) Touch(now float64) {
	c.lastRecv = now
}

func (c *TCPAccept) LastRecvTime() float64 {
	return c.lastRecv
}

func (c *TCPAccept) RestartLastRecvTime() {
	c.lastRecv = 0
}

// CheckRecvTimeout reports whether the receive deadline has expired. A zero
// last-received-time means the deadline is not armed yet.
func (c *TCPAccept) CheckRecvTimeout(now float64) bool {
	return c.lastRecv > 0 && c.recvTimeout > 0 && c.lastRecv+c.recvTimeout < now
}

func (c *TCPAccept) AddSendTotal(n int) {
	c.sendTotal.Add(int64(n))
}

func (c *TCPAccept) AddRecvTotal(n int) {
	c.recvTotal.Add(int64(n))
}

func (c *TCPAccept) SendTotal() int64 {
	return c.sendTotal.Load()
}

func (c *TCPAccept) RecvTotal() int64 {
	return c.recvTotal.Load()
}

// SetWantSend opts the connection into writable interest. Must be set before
// the connection joins a manage; off by default on every backend.
func (c *TCPAccept) SetWantSend(want bool) {
	c.wantSend = want
}

func (c *TCPAccept) WantSend() bool {
	return c.wantSend
}

// Send pushes data synchronously through WriteFully. Used by protocol layers
// that answer from inside OnRecv.
func (c *TCPAccept) Send(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n, err := c.stream.WriteFully(data)
	c.AddSendTotal(n)
	if err != nil {
		log.Error().Msgf("[%d] got error while sending %d bytes: %+v", c.Fd(), len(data), err)
		return false
	}
	return true
}

// CloseSocket closes the descriptor and resets the bookkeeping.
func (c *TCPAccept) CloseSocket() {
	c.sock.Close()
	c.lastRecv = 0
	c.sendTotal.Store(0)
	c.recvTotal.Store(0)
}

// Default event handlers. Connections shadow the ones they implement.

func (c *TCPAccept) OnRecv(maxSize int, now float64) int { return 0 }

func (c *TCPAccept) OnSend(maxSize int) int { return 0 }

func (c *TCPAccept) OnError(code int) {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] socket error event, code:%d", c.Fd(), code)
	}
}

func (c *TCPAccept) OnClose() {}

// OnUpdate is the per-tick hook; the default enforces the receive timeout.
func (c *TCPAccept) OnUpdate(now float64) bool {
	return !c.CheckRecvTimeout(now)
}
