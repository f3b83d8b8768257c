package netcore

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	if cfg.RecvTimeoutSec != 120 {
		t.Errorf("recv timeout default = %v", cfg.RecvTimeoutSec)
	}
	if cfg.HeartbeatSec != 30 {
		t.Errorf("heartbeat default = %v", cfg.HeartbeatSec)
	}
	if cfg.AcceptTimeoutSec != 60 {
		t.Errorf("accept timeout default = %v", cfg.AcceptTimeoutSec)
	}
	if cfg.OverloadWaitSec != 10 {
		t.Errorf("overload wait default = %v", cfg.OverloadWaitSec)
	}
	if cfg.TCPBufferBytes != 262144 {
		t.Errorf("tcp buffer default = %v", cfg.TCPBufferBytes)
	}
	if cfg.AcceptorThreads != 1 {
		t.Errorf("acceptor threads default = %v", cfg.AcceptorThreads)
	}
	if cfg.NotifierBackend != BackendAuto {
		t.Errorf("notifier backend default = %v", cfg.NotifierBackend)
	}
	if cfg.MaxConnections != 0 {
		t.Error("max_connections must have no default")
	}
}

func TestValidateServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := validateServerConfig(&cfg); err == nil {
		t.Error("missing max_connections accepted")
	}
	cfg.MaxConnections = 16
	cfg.AcceptorThreads = 0
	if err := validateServerConfig(&cfg); err != nil {
		t.Errorf("valid config rejected: %+v", err)
	}
	if cfg.AcceptorThreads != 1 {
		t.Error("acceptor_threads not clamped to 1")
	}
	cfg.NotifierBackend = "iocp"
	if err := validateServerConfig(&cfg); err != unsupportedBackend {
		t.Errorf("bad backend = %v, want unsupportedBackend", err)
	}
}

func TestLoadConfigToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[global]
log_level = "debug"

[server]
max_connections = 256
recv_timeout_seconds = 15.0
tcp_no_delay = true
acceptor_threads = 4
notifier_backend = "level-set"

[server.keep_alive]
enable = true
idle_sec = 60
interval_sec = 10
probe_count = 3
`
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write error: %+v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %+v", err)
	}
	if cfg.Global.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Global.LogLevel)
	}
	if cfg.Server.MaxConnections != 256 {
		t.Errorf("max_connections = %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RecvTimeoutSec != 15 {
		t.Errorf("recv_timeout_seconds = %v", cfg.Server.RecvTimeoutSec)
	}
	if !cfg.Server.TCPNoDelay {
		t.Error("tcp_no_delay not set")
	}
	if cfg.Server.AcceptorThreads != 4 {
		t.Errorf("acceptor_threads = %d", cfg.Server.AcceptorThreads)
	}
	if cfg.Server.NotifierBackend != BackendLevelSet {
		t.Errorf("notifier_backend = %q", cfg.Server.NotifierBackend)
	}
	if !cfg.Server.KeepAlive.Enable || cfg.Server.KeepAlive.IdleSec != 60 {
		t.Errorf("keep_alive = %+v", cfg.Server.KeepAlive)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.HeartbeatSec != 30 {
		t.Errorf("heartbeat default lost: %v", cfg.Server.HeartbeatSec)
	}
}

func TestLoadConfigYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
global:
  log_level: warn
server:
  max_connections: 64
  reuse_address: true
  ipv6_only: true
`
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write error: %+v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %+v", err)
	}
	if cfg.Server.MaxConnections != 64 {
		t.Errorf("max_connections = %d", cfg.Server.MaxConnections)
	}
	if !cfg.Server.ReuseAddress || !cfg.Server.IPv6Only {
		t.Error("bool options not loaded")
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "config.ini")
	ioutil.WriteFile(path, []byte("x"), 0644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("unknown format accepted")
	}
	path = filepath.Join(t.TempDir(), "noconn.yaml")
	ioutil.WriteFile(path, []byte("server: {}\n"), 0644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("config without max_connections accepted")
	}
}
