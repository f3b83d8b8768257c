package netcore

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ConnManage owns the joined connections and drives one readiness cycle per
// Update call. It is deliberately not thread-safe: exactly one goroutine may
// call Join/Unjoin/Update/Clear/ErrorSet over its lifetime. Acceptor threads
// hand new connections over through a queue drained by that same goroutine.
type ConnManage struct {
	maxConns int
	maxRead  int
	poller   Poller
	clock    Clock

	conns   map[int]EventConn
	errored map[int]EventConn

	recvList []SocketEvent
	sendList []SocketEvent
	errList  []SocketEvent

	strictOwner bool
	ownerID     int64

	statsPeriod float64
	lastStats   float64
}

// NewConnManage opens the configured notifier backend and builds an empty
// manage around it.
func NewConnManage(cfg *ServerConfig) (*ConnManage, error) {
	poller, err := NewPoller(cfg.NotifierBackend, cfg.MaxConnections)
	if err != nil {
		return nil, err
	}
	return newConnManage(poller, NewClock(), cfg), nil
}

func newConnManage(poller Poller, clock Clock, cfg *ServerConfig) *ConnManage {
	maxRead := cfg.TCPBufferBytes
	if maxRead <= 0 {
		maxRead = defTCPBufferBytes
	}
	return &ConnManage{
		maxConns:    cfg.MaxConnections,
		maxRead:     maxRead,
		poller:      poller,
		clock:       clock,
		conns:       make(map[int]EventConn, cfg.MaxConnections),
		errored:     make(map[int]EventConn),
		recvList:    make([]SocketEvent, 0, defEventsBufferSize),
		sendList:    make([]SocketEvent, 0, defEventsBufferSize),
		errList:     make([]SocketEvent, 0, defEventsBufferSize),
		statsPeriod: 20,
	}
}

// SetStrictOwner arms the single-goroutine assertion. The first goroutine
// that touches the manage becomes the owner; any other panics.
func (m *ConnManage) SetStrictOwner(strict bool) {
	m.strictOwner = strict
}

func (m *ConnManage) checkOwner() {
	if !m.strictOwner {
		return
	}
	id := goid()
	if m.ownerID == 0 {
		m.ownerID = id
		return
	}
	if m.ownerID != id {
		panic(foreignGoroutine)
	}
}

// Join inserts a connection and registers it with the notifier for readable
// interest; writable interest is a per-connection opt-in.
func (m *ConnManage) Join(c EventConn) error {
	m.checkOwner()
	core := c.Core()
	if !core.Socket().IsValid() {
		return invalidSocket
	}
	if len(m.conns) >= m.maxConns {
		return manageFull
	}
	fd := core.Fd()
	if _, ok := m.conns[fd]; ok {
		return duplicateSocket
	}
	err := m.poller.Add(fd, core.WantSend())
	if err != nil {
		return err
	}
	m.conns[fd] = c
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] joined connection from %s", fd, core.RemoteAddr())
	}
	return nil
}

// JoinBatch joins a slice, returning how many made it in. A failing entry
// does not affect the others.
func (m *ConnManage) JoinBatch(batch []EventConn) int {
	joined := 0
	for _, c := range batch {
		err := m.Join(c)
		if err != nil {
			log.Error().Msgf("got error while joining connection: %+v", err)
			continue
		}
		joined++
	}
	return joined
}

// Unjoin removes the connection from the notifier and then from the manage,
// firing OnClose. A no-op for connections that are not joined.
func (m *ConnManage) Unjoin(c EventConn) {
	m.checkOwner()
	fd := c.Core().Fd()
	if fd < 0 {
		return
	}
	if _, ok := m.conns[fd]; !ok {
		return
	}
	err := m.poller.Remove(fd)
	if err != nil {
		log.Error().Msgf("[%d] got error while detaching fd from notifier: %+v", fd, err)
	}
	delete(m.conns, fd)
	c.OnClose()
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] unjoined connection", fd)
	}
}

func (m *ConnManage) Count() int {
	return len(m.conns)
}

// ErrorSet returns the connections flagged during the most recent Update.
// Consume it before the next Update; the next cycle starts by draining it.
func (m *ConnManage) ErrorSet() map[int]EventConn {
	return m.errored
}

func (m *ConnManage) enroll(c EventConn) {
	m.errored[c.Core().Fd()] = c
}

// procErrored releases the previous cycle's errored set: unlink from the
// notifier first, then close the descriptor.
func (m *ConnManage) procErrored() {
	if len(m.errored) == 0 {
		return
	}
	for _, c := range m.errored {
		m.Unjoin(c)
		c.Core().CloseSocket()
	}
	m.errored = make(map[int]EventConn)
}

// Update drives one readiness cycle: drain the previous errored set, poll,
// dispatch recv then send then error partitions, then run the per-tick
// hooks. Returns the number of events dispatched.
func (m *ConnManage) Update(timeout float64) (int, error) {
	m.checkOwner()
	m.procErrored()

	m.recvList = m.recvList[:0]
	m.sendList = m.sendList[:0]
	m.errList = m.errList[:0]

	total, err := m.poller.Poll(timeout, &m.recvList, &m.sendList, &m.errList)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()

	for i := range m.recvList {
		fd := m.recvList[i].Fd
		c, ok := m.conns[fd]
		if !ok {
			m.dropStale(fd)
			continue
		}
		n := c.OnRecv(m.maxRead, now)
		if n < 0 {
			m.enroll(c)
			continue
		}
		c.Core().Touch(now)
		if n > 0 {
			c.Core().AddRecvTotal(n)
		}
	}

	for i := range m.sendList {
		fd := m.sendList[i].Fd
		c, ok := m.conns[fd]
		if !ok {
			m.dropStale(fd)
			continue
		}
		n := c.OnSend(m.maxRead)
		if n < 0 {
			m.enroll(c)
			continue
		}
		if n > 0 {
			c.Core().AddSendTotal(n)
		}
	}

	for i := range m.errList {
		fd := m.errList[i].Fd
		c, ok := m.conns[fd]
		if !ok {
			m.dropStale(fd)
			continue
		}
		c.OnError(m.errList[i].Err)
		m.enroll(c)
	}

	for fd, c := range m.conns {
		if _, bad := m.errored[fd]; bad {
			continue
		}
		if !c.OnUpdate(now) {
			m.enroll(c)
		}
	}

	m.dumpStats(now)
	return total, nil
}

func (m *ConnManage) dropStale(fd int) {
	err := m.poller.Remove(fd)
	if err != nil {
		log.Error().Msgf("[%d] got error while detaching stale fd from notifier: %+v", fd, err)
	}
}

// Clear unregisters and drops every connection, then frees the notifier.
func (m *ConnManage) Clear() {
	m.checkOwner()
	for _, c := range m.conns {
		m.Unjoin(c)
		c.Core().CloseSocket()
	}
	m.errored = make(map[int]EventConn)
	m.poller.Clear()
}

func (m *ConnManage) dumpStats(now float64) {
	if m.statsPeriod <= 0 || now-m.lastStats < m.statsPeriod {
		return
	}
	m.lastStats = now
	if !log.Debug().Enabled() {
		return
	}
	log.Debug().Msgf("total connections: %d", len(m.conns))
	for fd, c := range m.conns {
		core := c.Core()
		log.Debug().Msgf("[%d] connection:[%s] lastRecvTime: %f sent: %d received: %d",
			fd, core.RemoteAddr(), core.LastRecvTime(), core.SendTotal(), core.RecvTotal())
	}
}

func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
