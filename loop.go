package netcore

import (
	"runtime"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

type EventLoopConfig struct {
	Name          string
	LockOsThread  bool
	UpdateTimeout float64 // seconds handed to each Update cycle
}

// EventLoop runs a Server's Update cadence on one goroutine, which becomes
// the manage owner. The cadence is otherwise caller-controlled: users who
// need their own loop just call Server.Update themselves.
type EventLoop struct {
	Name         string
	lockOsThread bool
	timeout      float64
	isRunning    *atomic.Bool
}

func NewEventLoop(config EventLoopConfig) *EventLoop {
	if log.Debug().Enabled() {
		log.Debug().Msgf("init event loop:%+v", config)
	} else {
		log.Info().Msgf("init event loop:%s", config.Name)
	}
	return &EventLoop{
		Name:         config.Name,
		lockOsThread: config.LockOsThread,
		timeout:      config.UpdateTimeout,
		isRunning:    atomic.NewBool(false),
	}
}

// Run drives the server until Stop. onErrored is invoked for every
// connection in the errored set after each cycle, before the next cycle
// releases it.
func (el *EventLoop) Run(srv *Server, onErrored func(EventConn)) {
	if el.lockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	el.isRunning.Store(true)
	for el.isRunning.Load() {
		evCount, err := srv.Update(el.timeout)
		if err != nil {
			log.Error().Msgf("got error while waiting for the net events: %+v", err)
			break
		}
		if log.Debug().Enabled() && evCount > 0 {
			log.Debug().Msgf("processed %d netpoll events", evCount)
		}
		if onErrored != nil {
			for _, c := range srv.ErrorSet() {
				onErrored(c)
			}
		}
	}
}

func (el *EventLoop) Stop() {
	el.isRunning.Store(false)
}
