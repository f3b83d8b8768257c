//go:build freebsd
// +build freebsd

package netcore

import "golang.org/x/sys/unix"

const sockoptKeepIdle = unix.TCP_KEEPIDLE
