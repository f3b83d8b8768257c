//go:build darwin
// +build darwin

package netcore

import "golang.org/x/sys/unix"

// Darwin spells the keep-alive idle timer TCP_KEEPALIVE.
const sockoptKeepIdle = unix.TCP_KEEPALIVE
