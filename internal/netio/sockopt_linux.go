//go:build linux

package netio

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// rcvBufBytes sizes the kernel receive buffer generously: a DV emit can be
// as large as 12 + 12*|routing table|, and a node with several thousand
// external-range entries should never see ENOBUFS-style silent drops under
// burst absorption.
const rcvBufBytes = 1 << 20 // 1 MiB

// controlFunc returns the net.ListenConfig.Control callback that applies
// SO_REUSEADDR and SO_RCVBUF to a freshly created port socket. The engine
// has no raw-socket or TTL requirement of its own, so only the options that
// matter for a plain UDP demux port are set here.
func controlFunc() func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
			sockErr = applySockOpts(int(fd))
		})
		if err != nil {
			return fmt.Errorf("raw conn control: %w", err)
		}
		return sockErr
	}
}

// applySockOpts sets SO_REUSEADDR (so a restarted node can rebind a port
// still draining its TIME_WAIT-equivalent state) and SO_RCVBUF on fd.
func applySockOpts(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes); err != nil {
		return fmt.Errorf("set SO_RCVBUF: %w", err)
	}
	return nil
}
