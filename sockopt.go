package netcore

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// KeepAliveConfig mirrors the kernel's TCP keep-alive knobs.
type KeepAliveConfig struct {
	Enable      bool `yaml:"enable" toml:"enable"`
	IdleSec     int  `yaml:"idle_sec" toml:"idle_sec"`
	IntervalSec int  `yaml:"interval_sec" toml:"interval_sec"`
	ProbeCount  int  `yaml:"probe_count" toml:"probe_count"`
}

// SetNoDelay toggles Nagle's algorithm off or on.
func SetNoDelay(fd int, noDelay bool) error {
	v := 0
	if noDelay {
		v = 1
	}
	err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
	if err != nil {
		return os.NewSyscallError("setsockopt TCP_NODELAY", err)
	}
	return nil
}

// SetBuffers sets SO_SNDBUF and SO_RCVBUF to the same target.
func SetBuffers(fd int, bytes int) error {
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	if err != nil {
		return os.NewSyscallError("setsockopt SO_RCVBUF", err)
	}
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
	if err != nil {
		return os.NewSyscallError("setsockopt SO_SNDBUF", err)
	}
	return nil
}

// SetKeepAlive enables or disables TCP keep-alive and applies the probe
// timers when enabling.
func SetKeepAlive(fd int, cfg KeepAliveConfig) error {
	v := 0
	if cfg.Enable {
		v = 1
	}
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
	if err != nil {
		return os.NewSyscallError("setsockopt SO_KEEPALIVE", err)
	}
	if !cfg.Enable {
		return nil
	}
	if cfg.IdleSec > 0 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, sockoptKeepIdle, cfg.IdleSec)
		if err != nil {
			return os.NewSyscallError("setsockopt TCP_KEEPIDLE", err)
		}
	}
	if cfg.IntervalSec > 0 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, cfg.IntervalSec)
		if err != nil {
			return os.NewSyscallError("setsockopt TCP_KEEPINTVL", err)
		}
	}
	if cfg.ProbeCount > 0 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.ProbeCount)
		if err != nil {
			return os.NewSyscallError("setsockopt TCP_KEEPCNT", err)
		}
	}
	return nil
}

// SetIPv6Only restricts a v6 listener to v6 peers.
func SetIPv6Only(fd int, only bool) error {
	v := 0
	if only {
		v = 1
	}
	err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v)
	if err != nil {
		return os.NewSyscallError("setsockopt IPV6_V6ONLY", err)
	}
	return nil
}

// applySocketOptions configures a freshly accepted socket per server config.
func applySocketOptions(fd int, cfg *ServerConfig) {
	if cfg.TCPBufferBytes > 0 {
		err := SetBuffers(fd, cfg.TCPBufferBytes)
		if err != nil {
			log.Error().Msgf("got error while setting socket buffers: %+v", err)
		}
	}
	if cfg.TCPNoDelay {
		err := SetNoDelay(fd, true)
		if err != nil {
			log.Error().Msgf("got error while setting socket option TCP_NODELAY: %+v", err)
		}
	}
	if cfg.KeepAlive.Enable {
		err := SetKeepAlive(fd, cfg.KeepAlive)
		if err != nil {
			log.Error().Msgf("got error while setting socket keep-alive: %+v", err)
		}
	}
}
