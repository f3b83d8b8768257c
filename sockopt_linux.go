//go:build linux
// +build linux

package netcore

import "golang.org/x/sys/unix"

const sockoptKeepIdle = unix.TCP_KEEPIDLE
