package netcore

import (
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const acceptorAddrPoolSize = 8

// ConnFactory builds the application's connection around an accepted
// descriptor. It runs on an acceptor thread, so it must only construct;
// the connection first becomes live when the owner joins it.
type ConnFactory func(sock *SockHandle, addr *Address) EventConn

// handoffQueue is the multi-producer/single-consumer channel between the
// acceptor threads and the manage owner.
type handoffQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newHandoffQueue() *handoffQueue {
	return &handoffQueue{q: queue.New()}
}

func (h *handoffQueue) Push(c EventConn) {
	h.mu.Lock()
	h.q.Add(c)
	h.mu.Unlock()
}

func (h *handoffQueue) Len() int {
	h.mu.Lock()
	n := h.q.Length()
	h.mu.Unlock()
	return n
}

// Drain pops everything queued so far into fn. Called only by the owner.
func (h *handoffQueue) Drain(fn func(EventConn)) int {
	drained := 0
	for {
		h.mu.Lock()
		if h.q.Length() == 0 {
			h.mu.Unlock()
			return drained
		}
		c := h.q.Remove().(EventConn)
		h.mu.Unlock()
		fn(c)
		drained++
	}
}

// acceptorPool runs a fixed number of acceptor threads against one listening
// socket. Each thread owns a small pool of recyclable address slots and
// publishes accepted connections into the handoff queue.
type acceptorPool struct {
	srv     *AcceptServer
	factory ConnFactory
	handoff *handoffQueue
	threads int

	running  *atomic.Bool
	gate     chan struct{} // binary semaphore guarding shutdown
	wg       sync.WaitGroup
	accepted *atomic.Int64
	fatals   *atomic.Int64
}

func newAcceptorPool(srv *AcceptServer, factory ConnFactory, handoff *handoffQueue, threads int) *acceptorPool {
	if threads < 1 {
		threads = 1
	}
	return &acceptorPool{
		srv:      srv,
		factory:  factory,
		handoff:  handoff,
		threads:  threads,
		running:  atomic.NewBool(false),
		gate:     make(chan struct{}, 1),
		accepted: atomic.NewInt64(0),
		fatals:   atomic.NewInt64(0),
	}
}

func (p *acceptorPool) Start() {
	if !p.running.CAS(false, true) {
		return
	}
	p.gate <- struct{}{}
	for i := 0; i < p.threads; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *acceptorPool) run(id int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	addrs := p.srv.CreateAddressPool(acceptorAddrPoolSize)
	slot := 0
	log.Info().Msgf("acceptor %d listening on %s", id, p.srv.Addr())

	for p.running.Load() {
		addr := addrs[slot]
		sock, err := p.srv.Accept(addr)
		if err != nil {
			if p.running.Load() {
				p.fatals.Inc()
				log.Error().Msgf("acceptor %d got fatal accept error: %+v", id, err)
			}
			return
		}
		if sock == nil {
			continue
		}
		conn := p.factory(sock, addr.Clone())
		if conn == nil {
			sock.Close()
			continue
		}
		p.handoff.Push(conn)
		p.accepted.Inc()
		slot = (slot + 1) % len(addrs)
	}
}

// Stop flips the run flag, closes the listener to unblock pending accepts
// and waits for every thread to drain. Idempotent.
func (p *acceptorPool) Stop() {
	select {
	case <-p.gate:
	default:
		return
	}
	p.running.Store(false)
	p.srv.Close()
	p.wg.Wait()
}

func (p *acceptorPool) Accepted() int64 {
	return p.accepted.Load()
}

func (p *acceptorPool) Fatals() int64 {
	return p.fatals.Load()
}
