//go:build !linux

package netio

import "syscall"

// controlFunc is a no-op off Linux: SO_REUSEADDR/SO_RCVBUF tuning here is
// an optimization, not a correctness requirement, and the syscall numbers
// in sockopt_linux.go are Linux-specific.
func controlFunc() func(network, address string, c syscall.RawConn) error {
	return nil
}
