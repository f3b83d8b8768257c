package netcore

import (
	"errors"
	"io/ioutil"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const (
	defRecvTimeoutSec = 120.0
	defHeartbeatSec   = 30.0
	defTCPBufferBytes = 262144
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// ServerConfig is the engine's whole configuration surface.
type ServerConfig struct {
	MaxConnections   int     `yaml:"max_connections" toml:"max_connections"`
	RecvTimeoutSec   float64 `yaml:"recv_timeout_seconds" toml:"recv_timeout_seconds"`
	HeartbeatSec     float64 `yaml:"heartbeat_seconds" toml:"heartbeat_seconds"`
	AcceptTimeoutSec float64 `yaml:"accept_timeout_seconds" toml:"accept_timeout_seconds"`
	OverloadWaitSec  float64 `yaml:"overload_wait_seconds" toml:"overload_wait_seconds"`
	TCPBufferBytes   int     `yaml:"tcp_buffer_bytes" toml:"tcp_buffer_bytes"`
	TCPNoDelay       bool    `yaml:"tcp_no_delay" toml:"tcp_no_delay"`

	KeepAlive KeepAliveConfig `yaml:"keep_alive" toml:"keep_alive"`

	ReuseAddress    bool   `yaml:"reuse_address" toml:"reuse_address"`
	IPv6Only        bool   `yaml:"ipv6_only" toml:"ipv6_only"`
	AcceptorThreads int    `yaml:"acceptor_threads" toml:"acceptor_threads"`
	NotifierBackend string `yaml:"notifier_backend" toml:"notifier_backend"`
}

type Config struct {
	Global Global       `yaml:"global" toml:"global"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

// DefaultServerConfig carries the documented defaults. MaxConnections has no
// default; the caller must set it.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RecvTimeoutSec:   defRecvTimeoutSec,
		HeartbeatSec:     defHeartbeatSec,
		AcceptTimeoutSec: defAcceptTimeoutSec,
		OverloadWaitSec:  defOverloadWaitSec,
		TCPBufferBytes:   defTCPBufferBytes,
		AcceptorThreads:  1,
		NotifierBackend:  BackendAuto,
	}
}

func DefaultConfig() *Config {
	return &Config{Server: DefaultServerConfig()}
}

// LoadConfig reads a .toml or .yaml file over the defaults.
func LoadConfig(filePath string) (*Config, error) {
	file, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	if strings.HasSuffix(filePath, ".toml") {
		err = toml.Unmarshal(file, config)
	} else if strings.HasSuffix(filePath, ".yaml") || strings.HasSuffix(filePath, ".yml") {
		err = yaml.Unmarshal(file, config)
	} else {
		err = errors.New("unknown config file format")
	}
	if err != nil {
		return nil, err
	}
	err = validateConfig(config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	return validateServerConfig(&config.Server)
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.MaxConnections <= 0 {
		return errors.New("max_connections must be set and positive")
	}
	if cfg.AcceptorThreads < 1 {
		cfg.AcceptorThreads = 1
	}
	switch cfg.NotifierBackend {
	case "", BackendAuto, BackendLevelSet, BackendEdgeInterest, BackendDualFilter:
	default:
		return unsupportedBackend
	}
	return nil
}
