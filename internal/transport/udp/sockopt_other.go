//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package udp

import "syscall"

// reusePort is a no-op; only one client per host can bind the port here.
func reusePort(network, address string, c syscall.RawConn) error {
	return nil
}
