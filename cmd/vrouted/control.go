package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/vrouted/vrouted/internal/netio"
	"github.com/vrouted/vrouted/internal/router"
)

// controlPort is the synthetic in_port handed to Handle for packets that
// arrive on the control socket. applyControl never inspects in_port, so any
// value is safe; a negative sentinel keeps it visibly distinct from a real
// configured engine port.
const controlPort = -1

// recvPollInterval bounds how long the control listener blocks in a read
// before re-checking ctx, mirroring internal/netio.Receiver's own loop.
const recvPollInterval = 500 * time.Millisecond

// controlListener accepts CONTROL packets addressed to any node this
// daemon runs and applies them via Manager.Handle. The header's Src field
// is repurposed by this harness as the target node's router id -- src/dst
// on a CONTROL packet carry no routing meaning of their own, only on
// DATA/DV packets. The result code is written back to the sender as a
// single byte so vrouterctl can report success/failure.
type controlListener struct {
	conn   *net.UDPConn
	mgr    *router.Manager
	logger *slog.Logger
}

func newControlListener(addr string, mgr *router.Manager, logger *slog.Logger) (*controlListener, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve control addr %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen control addr %q: %w", addr, err)
	}
	return &controlListener{conn: conn, mgr: mgr, logger: logger.With(slog.String("component", "control"))}, nil
}

func (c *controlListener) Close() error {
	return c.conn.Close()
}

func (c *controlListener) Run(ctx context.Context) error {
	buf := make([]byte, router.MaxPacketSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
			return fmt.Errorf("set control read deadline: %w", err)
		}

		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			c.logger.Warn("control recv error", slog.String("error", err.Error()))
			continue
		}

		c.handleOne(buf[:n], src)
	}
}

func (c *controlListener) handleOne(buf []byte, src *net.UDPAddr) {
	h, err := router.DecodeHeader(buf)
	if err != nil {
		c.logger.Warn("control packet too short", slog.String("src", src.String()))
		return
	}

	result, err := c.mgr.Handle(h.Src, controlPort, buf)
	if err != nil {
		c.logger.Warn("control handle failed", slog.Uint64("node_id", uint64(h.Src)), slog.String("error", err.Error()))
		c.reply(src, router.Drop)
		return
	}

	c.reply(src, result)
}

func (c *controlListener) reply(dst *net.UDPAddr, result int) {
	//nolint:gosec // G115: result is one of {-1,0,1} or a small port number, always fits in a byte for this ack.
	ack := [1]byte{byte(result)}
	if _, err := c.conn.WriteToUDP(ack[:], dst); err != nil {
		c.logger.Warn("control ack write failed", slog.String("dst", dst.String()), slog.String("error", err.Error()))
	}
}

// runDVTicker periodically fires a trigger-DV control packet at nodeID and
// broadcasts the resulting DV packet to every neighbor port. The engine has
// no timer of its own; periodic DV broadcast is entirely this harness's
// responsibility.
func runDVTicker(ctx context.Context, mgr *router.Manager, nodeID uint32, interval time.Duration, ports []netio.PortConfig, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fireDV(mgr, nodeID, ports, logger)
		}
	}
}

func fireDV(mgr *router.Manager, nodeID uint32, ports []netio.PortConfig, logger *slog.Logger) {
	buf := make([]byte, router.MaxPacketSize)
	payload := "0 "
	h := router.Header{Src: nodeID, Type: router.TypeControl, Length: uint16(len(payload))}
	if err := router.EncodeHeader(buf, h); err != nil {
		logger.Warn("encode trigger-dv header failed", slog.String("error", err.Error()))
		return
	}
	copy(buf[router.HeaderSize:], payload)

	result, err := mgr.Handle(nodeID, controlPort, buf)
	if err != nil {
		logger.Warn("periodic dv trigger failed", slog.Uint64("node_id", uint64(nodeID)), slog.String("error", err.Error()))
		return
	}
	if result != 0 {
		return
	}

	outHeader, err := router.DecodeHeader(buf)
	if err != nil {
		return
	}
	total := router.HeaderSize + int(outHeader.Length)
	if total > len(buf) {
		total = len(buf)
	}
	out := buf[:total]

	for _, pc := range ports {
		if !pc.Neighbor.IsValid() {
			continue
		}
		if err := pc.Transport.Send(out, pc.Neighbor); err != nil {
			logger.Warn("periodic dv broadcast failed", slog.Int("port", pc.Port), slog.String("error", err.Error()))
		}
	}
}
