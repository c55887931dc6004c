package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/vrouted/vrouted/internal/router"
)

// Sentinel errors for transport setup and I/O.
var (
	ErrUnexpectedConnType = errors.New("listen returned unexpected connection type")
	ErrSocketClosed       = errors.New("socket already closed")
)

// PortTransport binds one internal/router engine port to a UDP socket. A
// port here is always a plain UDP socket: the engine's own header carries
// everything Handle needs to make forwarding decisions, so the transport's
// only job is getting bytes in and out.
type PortTransport struct {
	conn *net.UDPConn
}

// NewPortTransport binds a UDP socket at addr (e.g. "127.0.0.1:9000") for
// one engine port, applying SO_REUSEADDR/SO_RCVBUF via the platform-specific
// Control callback in sockopt_linux.go.
func NewPortTransport(addr string) (*PortTransport, error) {
	lc := net.ListenConfig{Control: controlFunc()}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %q: %w", addr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(fmt.Errorf("listen udp %q: %w", addr, ErrUnexpectedConnType), closeErr)
	}

	return &PortTransport{conn: conn}, nil
}

// Recv reads one packet into buf, which should be sized at least
// router.MaxPacketSize so the engine can write an expanded DV reply into
// the same buffer. Returns the number of bytes read and the sender's
// address.
func (t *PortTransport) Recv(buf []byte) (int, netip.AddrPort, error) {
	n, src, err := t.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("port transport recv: %w", err)
	}
	return n, src, nil
}

// Send writes buf to dst.
func (t *PortTransport) Send(buf []byte, dst netip.AddrPort) error {
	if _, err := t.conn.WriteToUDPAddrPort(buf, dst); err != nil {
		return fmt.Errorf("port transport send to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the address this transport is bound to.
func (t *PortTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetReadDeadline sets the read deadline on the underlying socket, letting
// a blocked Recv return promptly around shutdown or in tests.
func (t *PortTransport) SetReadDeadline(deadline time.Time) error {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set port transport read deadline: %w", err)
	}
	return nil
}

// Close closes the underlying socket.
func (t *PortTransport) Close() error {
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("close port transport: %w", err)
	}
	return nil
}

// outLen returns the number of bytes of buf that actually form the
// packet Handle wrote, read back out of the (possibly rewritten) header
// rather than assumed from the inbound read length — DV emits are almost
// always larger than the CONTROL or DATA packet that triggered them.
func outLen(buf []byte) int {
	h, err := router.DecodeHeader(buf)
	if err != nil {
		return router.HeaderSize
	}
	total := router.HeaderSize + int(h.Length)
	if total > cap(buf) {
		return cap(buf)
	}
	return total
}
