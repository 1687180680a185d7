//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePort lets several clients on one host bind the broadcast port. Every
// bound socket receives each broadcast datagram.
func reusePort(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr == nil {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	}); err != nil {
		return err
	}
	return sockErr
}
