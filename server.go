package netcore

import (
	"github.com/rs/zerolog/log"
)

// Server ties the acceptor pipeline to the connection manage: acceptor
// threads publish into the handoff queue, the single owner thread drains it
// inside Update and drives the readiness cycle.
type Server struct {
	cfg     ServerConfig
	accept  *AcceptServer
	manage  *ConnManage
	handoff *handoffQueue
	pool    *acceptorPool
}

// NewServer builds the whole pipeline around a bind address and the
// application's connection factory.
func NewServer(cfg ServerConfig, addr *Address, factory ConnFactory) (*Server, error) {
	err := validateServerConfig(&cfg)
	if err != nil {
		return nil, err
	}
	accept, err := NewAcceptServer(addr, cfg.MaxConnections, cfg.ReuseAddress, cfg.IPv6Only)
	if err != nil {
		return nil, err
	}
	accept.SetAcceptTimeout(cfg.AcceptTimeoutSec)
	accept.SetOverloadWait(cfg.OverloadWaitSec)

	manage, err := NewConnManage(&cfg)
	if err != nil {
		accept.Close()
		return nil, err
	}

	handoff := newHandoffQueue()
	wrapped := func(sock *SockHandle, remote *Address) EventConn {
		conn := factory(sock, remote)
		if conn == nil {
			return nil
		}
		applySocketOptions(sock.Fd(), &cfg)
		conn.Core().SetRecvTimeout(cfg.RecvTimeoutSec)
		return conn
	}
	srv := &Server{
		cfg:     cfg,
		accept:  accept,
		manage:  manage,
		handoff: handoff,
		pool:    newAcceptorPool(accept, wrapped, handoff, cfg.AcceptorThreads),
	}
	return srv, nil
}

// Start launches the acceptor threads.
func (s *Server) Start() {
	s.pool.Start()
}

// Addr is the listener's bound address.
func (s *Server) Addr() *Address {
	return s.accept.Addr()
}

func (s *Server) Config() ServerConfig {
	return s.cfg
}

func (s *Server) Manage() *ConnManage {
	return s.manage
}

// Update joins everything the acceptors handed off since the last cycle,
// then drives one manage cycle. Owner thread only.
func (s *Server) Update(timeout float64) (int, error) {
	s.handoff.Drain(func(c EventConn) {
		err := s.manage.Join(c)
		if err != nil {
			log.Warn().Msgf("[%d] rejecting accepted connection: %+v", c.Core().Fd(), err)
			c.OnClose()
			c.Core().CloseSocket()
		}
	})
	return s.manage.Update(timeout)
}

// ErrorSet exposes the manage's errored set for post-cycle cleanup.
func (s *Server) ErrorSet() map[int]EventConn {
	return s.manage.ErrorSet()
}

// DropErrored unjoins and closes everything in the current errored set,
// returning how many connections went away.
func (s *Server) DropErrored() int {
	dropped := 0
	for _, c := range s.manage.ErrorSet() {
		s.manage.Unjoin(c)
		c.Core().CloseSocket()
		dropped++
	}
	return dropped
}

func (s *Server) Stats() ServerStats {
	return ServerStats{
		ActiveConns:   s.manage.Count(),
		PendingJoins:  s.handoff.Len(),
		TotalAccepted: s.pool.Accepted(),
		AcceptFatals:  s.pool.Fatals(),
	}
}

// Shutdown stops the acceptors, then clears the manage from the caller's
// goroutine, which must be the owner.
func (s *Server) Shutdown() {
	s.pool.Stop()
	s.handoff.Drain(func(c EventConn) {
		c.Core().CloseSocket()
	})
	s.manage.Clear()
}
