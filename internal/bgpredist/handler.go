package bgpredist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vrouted/vrouted/internal/router"
)

// -------------------------------------------------------------------------
// Snapshotter — the Manager capability Handler needs
// -------------------------------------------------------------------------

// Snapshotter is the subset of *router.Manager that Handler depends on,
// narrowed to keep Handler testable without a full Manager.
type Snapshotter interface {
	Snapshot(nodeID uint32) (router.NodeSnapshot, error)
}

// -------------------------------------------------------------------------
// WatchedHost — DV reachability -> BGP peer binding
// -------------------------------------------------------------------------

// WatchedHost binds one internal host address to the BGP peer that should
// be disabled when that host's route is poisoned and re-enabled when it
// becomes reachable again.
type WatchedHost struct {
	// IP is the watched host's dotted-quad address.
	IP string

	// PeerAddr is the BGP peer address passed to Client.SetPeerAdmin.
	PeerAddr string
}

// -------------------------------------------------------------------------
// Handler — DV reachability -> BGP state change consumer
// -------------------------------------------------------------------------

// Handler consumes Manager.RouteChanges() events and applies BGP peer
// enable/disable actions when a watched host's reachability flips. There is
// no flap dampening layer: DV poison propagation already is the dampening
// mechanism, so a second layer here would only hide real state changes.
type Handler struct {
	client  Client
	watched map[uint32]string // host IP -> BGP peer addr

	// reachable tracks the last known reachability per host IP, so only
	// actual flips trigger a BGP action.
	reachable map[uint32]bool

	logger *slog.Logger
}

// HandlerConfig holds the configuration for a Handler.
type HandlerConfig struct {
	// Client is the GoBGP gRPC client.
	Client Client

	// Watched lists the hosts whose DV reachability drives BGP peer state.
	Watched []WatchedHost

	// Logger is the parent logger. The handler adds its own component tag.
	Logger *slog.Logger
}

// NewHandler creates a new DV-reachability -> BGP handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	watched := make(map[uint32]string, len(cfg.Watched))
	for _, w := range cfg.Watched {
		ip, err := router.ParseIP(w.IP)
		if err != nil {
			return nil, fmt.Errorf("handler watched host %q: %w", w.IP, err)
		}
		watched[ip] = w.PeerAddr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Handler{
		client:    cfg.Client,
		watched:   watched,
		reachable: make(map[uint32]bool, len(watched)),
		logger:    logger.With(slog.String("component", "bgpredist.handler")),
	}, nil
}

// Run consumes route changes and applies BGP actions. It blocks until ctx
// is cancelled or changes is closed.
//
// This method is designed to run as an errgroup goroutine:
//
//	g.Go(func() error {
//	    return handler.Run(gCtx, mgr.RouteChanges(), mgr)
//	})
func (h *Handler) Run(ctx context.Context, changes <-chan router.RouteChange, snaps Snapshotter) error {
	if len(h.watched) == 0 {
		h.logger.Info("no watched hosts configured, handler idle")
	}
	h.logger.Info("handler started, consuming route changes")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("handler stopped")
			return nil

		case rc, ok := <-changes:
			if !ok {
				h.logger.Info("route change channel closed, handler stopping")
				return nil
			}
			h.handleRouteChange(ctx, rc, snaps)
		}
	}
}

// handleRouteChange inspects the node's current snapshot for each watched
// host and applies a BGP action on any reachability flip.
func (h *Handler) handleRouteChange(ctx context.Context, rc router.RouteChange, snaps Snapshotter) {
	if len(h.watched) == 0 {
		return
	}

	snap, err := snaps.Snapshot(rc.NodeID)
	if err != nil {
		h.logger.Warn("snapshot failed", slog.Uint64("node_id", uint64(rc.NodeID)), slog.String("error", err.Error()))
		return
	}

	for ip, peerAddr := range h.watched {
		entry, ok := snap.RoutingTable[ip]
		nowReachable := ok && entry.Distance != -1

		// A host not seen before counts as reachable (its BGP peer starts
		// enabled), so a first reachable observation is only a baseline.
		wasReachable, known := h.reachable[ip]
		if !known {
			wasReachable = true
		}
		h.reachable[ip] = nowReachable
		if wasReachable == nowReachable {
			continue
		}

		if nowReachable {
			h.applyUp(ctx, peerAddr)
		} else {
			h.applyDown(ctx, peerAddr)
		}
	}
}

func (h *Handler) applyDown(ctx context.Context, peerAddr string) {
	h.logger.Info("host unreachable, disabling BGP peer", slog.String("peer", peerAddr))
	if err := h.client.SetPeerAdmin(ctx, peerAddr, false, "dv route poisoned"); err != nil {
		h.logger.Error("disable peer failed", slog.String("peer", peerAddr), slog.String("error", err.Error()))
	}
}

func (h *Handler) applyUp(ctx context.Context, peerAddr string) {
	h.logger.Info("host reachable, enabling BGP peer", slog.String("peer", peerAddr))
	if err := h.client.SetPeerAdmin(ctx, peerAddr, true, ""); err != nil {
		h.logger.Error("enable peer failed", slog.String("peer", peerAddr), slog.String("error", err.Error()))
	}
}
