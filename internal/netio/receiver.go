package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/vrouted/vrouted/internal/router"
)

// recvPollInterval bounds how long recvLoop blocks in Recv before re-checking
// ctx, so Run returns promptly after cancellation instead of waiting
// indefinitely on a socket with no traffic.
const recvPollInterval = 500 * time.Millisecond

// ErrNoListeners indicates that Run was called without any ports configured.
var ErrNoListeners = errors.New("receiver run: no ports provided")

// Demuxer routes one inbound packet through a router engine. internal/router's
// *Manager satisfies this by binding nodeID to the Manager.Handle call.
type Demuxer interface {
	Handle(nodeID uint32, port int, buf []byte) (int, error)
}

// PortConfig pairs a bound PortTransport with the static neighbor address
// packets forwarded out, or broadcast on, that port should be sent to.
type PortConfig struct {
	Port      int
	Transport *PortTransport
	Neighbor  netip.AddrPort
}

// Receiver reads packets from every configured port of one node and drives
// them through a Demuxer, writing the result back out over the
// corresponding PortTransport(s): one goroutine per listener, with
// context-aware shutdown.
type Receiver struct {
	nodeID  uint32
	demuxer Demuxer
	ports   []PortConfig
	byPort  map[int]PortConfig
	logger  *slog.Logger
}

// NewReceiver creates a Receiver for one node's ports.
func NewReceiver(nodeID uint32, demuxer Demuxer, ports []PortConfig, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	byPort := make(map[int]PortConfig, len(ports))
	for _, pc := range ports {
		byPort[pc.Port] = pc
	}
	return &Receiver{
		nodeID:  nodeID,
		demuxer: demuxer,
		ports:   ports,
		byPort:  byPort,
		logger: logger.With(
			slog.String("component", "netio.receiver"),
			slog.Uint64("node_id", uint64(nodeID)),
		),
	}
}

// Run reads from all ports concurrently until ctx is cancelled. Run blocks
// until every port's goroutine returns.
func (r *Receiver) Run(ctx context.Context) error {
	if len(r.ports) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(r.ports))
	for _, pc := range r.ports {
		go func(pc PortConfig) {
			r.recvLoop(ctx, pc)
			done <- struct{}{}
		}(pc)
	}

	for range r.ports {
		<-done
	}

	return nil
}

// recvLoop reads packets from one port until ctx is cancelled.
func (r *Receiver) recvLoop(ctx context.Context, pc PortConfig) {
	buf := make([]byte, router.MaxPacketSize)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := pc.Transport.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
			r.logger.Warn("set read deadline failed", slog.Int("port", pc.Port), slog.String("error", err.Error()))
			return
		}

		n, src, err := pc.Transport.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			r.logger.Warn("recv error", slog.Int("port", pc.Port), slog.String("error", err.Error()))
			continue
		}

		r.handleOne(pc, buf[:n], src)
	}
}

// handleOne dispatches one received packet through the Demuxer and acts on
// the result per the engine's Handle contract (drop / local-deliver /
// DV-broadcast / forward).
func (r *Receiver) handleOne(pc PortConfig, buf []byte, src netip.AddrPort) {
	result, err := r.demuxer.Handle(r.nodeID, pc.Port, buf)
	if err != nil {
		r.logger.Warn("handle error", slog.Int("port", pc.Port), slog.String("error", err.Error()))
		return
	}

	switch {
	case result == router.Drop:
		return

	case result == router.LocalDeliver:
		r.logger.Debug("delivered locally", slog.Int("port", pc.Port), slog.String("src", src.String()))

	case result == 0:
		out := buf[:outLen(buf)]
		for _, egress := range r.ports {
			if !egress.Neighbor.IsValid() {
				continue
			}
			if err := egress.Transport.Send(out, egress.Neighbor); err != nil {
				r.logger.Warn("dv broadcast failed", slog.Int("port", egress.Port), slog.String("error", err.Error()))
			}
		}

	default:
		egress, ok := r.byPort[result]
		if !ok {
			r.logger.Warn("handle returned an unconfigured forward port; dropping",
				slog.Int("in_port", pc.Port), slog.Int("out_port", result))
			return
		}
		out := buf[:outLen(buf)]
		if err := egress.Transport.Send(out, egress.Neighbor); err != nil {
			r.logger.Warn("forward failed", slog.Int("out_port", result), slog.String("error", err.Error()))
		}
	}
}
