package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"netcore"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var config *netcore.Config
var listenAddr string

func init() {
	configFilePath := flag.String("c", "", "path to configuration file.")
	flag.StringVar(&listenAddr, "l", "127.0.0.1:9990", "listen address.")
	flag.Parse()
	if *configFilePath != "" {
		loaded, err := netcore.LoadConfig(*configFilePath)
		if err != nil {
			log.Fatal().Msgf("can't load config: %+v", err)
		}
		config = loaded
	} else {
		config = netcore.DefaultConfig()
		config.Server.MaxConnections = 1024
	}
	initLog(config)
}

func initLog(config *netcore.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(config.Global.LogLevel)
	if err != nil || config.Global.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

type echoConn struct {
	*netcore.TCPAccept
	buf []byte
}

func newEchoConn(sock *netcore.SockHandle, addr *netcore.Address) netcore.EventConn {
	// The drain loop in OnRecv needs a non-blocking descriptor on every
	// backend, not only the edge-triggered one.
	err := netcore.SetBlocking(sock.Fd(), false, 0, 0)
	if err != nil {
		log.Error().Msgf("got error while switching socket to non-blocking: %+v", err)
	}
	return &echoConn{
		TCPAccept: netcore.NewTCPAccept(sock, addr),
		buf:       make([]byte, 4096),
	}
}

// OnRecv drains the socket until would-block and echoes every chunk back.
func (c *echoConn) OnRecv(maxSize int, now float64) int {
	total := 0
	for {
		n, err := c.Stream().ReadSome(c.buf)
		if err != nil {
			if err == netcore.ErrWouldBlock {
				return total
			}
			return netcore.CodeOf(err)
		}
		if !c.Send(c.buf[:n]) {
			return netcore.CodeBrokenPipe
		}
		total += n
	}
}

func (c *echoConn) OnClose() {
	log.Info().Msgf("[%d] closed connection from %s", c.Fd(), c.RemoteAddr())
}

func main() {
	log.Info().Msgf("starting echo server on %s...", listenAddr)
	addr, err := netcore.ParseAddress(listenAddr)
	if err != nil {
		log.Fatal().Msgf("can't parse listen address: %+v", err)
	}
	srv, err := netcore.NewServer(config.Server, addr, newEchoConn)
	if err != nil {
		log.Fatal().Msgf("can't init server: %+v", err)
	}
	srv.Start()

	eventLoop := netcore.NewEventLoop(netcore.EventLoopConfig{
		Name:          "MainLoop",
		LockOsThread:  true,
		UpdateTimeout: 1.0,
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info().Msg("stopping echo server...")
		eventLoop.Stop()
	}()

	eventLoop.Run(srv, func(c netcore.EventConn) {
		if log.Debug().Enabled() {
			log.Debug().Msgf("[%d] dropping errored connection", c.Core().Fd())
		}
	})
	srv.Shutdown()
}
