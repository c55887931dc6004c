// Package bgpredist mirrors internal/router's DV reachability into GoBGP
// peer admin state via GoBGP's own generated gRPC API.
//
// When a watched host's route is poisoned (distance == -1), the
// corresponding BGP peer is administratively disabled; when the route
// becomes reachable again, the peer is re-enabled.
package bgpredist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apipb "github.com/osrg/gobgp/v3/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// -------------------------------------------------------------------------
// Client Interface
// -------------------------------------------------------------------------

// Client abstracts the single GoBGP gRPC operation Handler needs: flipping
// a peer's administrative state. This interface enables testing without a
// running GoBGP instance.
type Client interface {
	// SetPeerAdmin administratively enables or disables the BGP peer at
	// addr. reason is sent as the administrative shutdown communication
	// string when disabling; it is ignored when enabling.
	SetPeerAdmin(ctx context.Context, addr string, up bool, reason string) error

	// Close releases the underlying gRPC connection.
	Close() error
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("bgpredist client is closed")

	// ErrDialFailed indicates the gRPC dial to GoBGP failed.
	ErrDialFailed = errors.New("bgpredist gRPC dial failed")
)

// -------------------------------------------------------------------------
// GRPCClient — production GoBGP gRPC client
// -------------------------------------------------------------------------

// GRPCClient connects to GoBGP's gRPC API and implements the Client
// interface over the generated GobgpApiClient.
//
// The underlying gRPC connection uses insecure credentials (plaintext)
// because GoBGP's API is typically accessed on localhost in production
// deployments.
type GRPCClient struct {
	conn   *grpc.ClientConn
	api    apipb.GobgpApiClient
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// GRPCClientConfig holds connection parameters for the GoBGP gRPC client.
type GRPCClientConfig struct {
	// Addr is the GoBGP gRPC listen address (e.g., "127.0.0.1:50051").
	Addr string

	// DialTimeout is not read by NewGRPCClient: the connection is
	// established lazily, and each RPC is bounded only by its context.
	DialTimeout time.Duration
}

// NewGRPCClient creates a new GoBGP gRPC client and establishes a connection.
//
// The connection uses grpc.NewClient with insecure credentials. GoBGP's
// gRPC API is typically exposed on localhost without TLS. The client uses
// lazy connection establishment (grpc.NewClient does not block); actual
// connectivity is verified on the first RPC call.
func NewGRPCClient(cfg GRPCClientConfig, logger *slog.Logger) (*GRPCClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("create bgpredist client: %w: empty address", ErrDialFailed)
	}

	conn, err := grpc.NewClient(
		cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("create bgpredist client to %s: %w: %w", cfg.Addr, ErrDialFailed, err)
	}

	client := &GRPCClient{
		conn: conn,
		api:  apipb.NewGobgpApiClient(conn),
		logger: logger.With(
			slog.String("component", "bgpredist.client"),
			slog.String("addr", cfg.Addr),
		),
	}

	client.logger.Info("gobgp gRPC client created", slog.String("target", cfg.Addr))

	return client, nil
}

// SetPeerAdmin flips the administrative state of the BGP peer at addr: up
// calls GoBGP's EnablePeer, !up calls DisablePeer with reason as the
// shutdown communication string. Collapsing both directions into one verb
// matches the boolean reachable/poisoned model the router's route table
// already hands Handler, instead of exposing GoBGP's two-RPC split to
// callers that only ever flip one bit.
func (c *GRPCClient) SetPeerAdmin(ctx context.Context, addr string, up bool, reason string) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("set peer admin state %s: %w", addr, ErrClientClosed)
	}
	c.mu.RUnlock()

	if up {
		if _, err := c.api.EnablePeer(ctx, &apipb.EnablePeerRequest{Address: addr}); err != nil {
			return fmt.Errorf("enable peer %s: %w", addr, err)
		}
		c.logger.Info("enabled BGP peer", slog.String("peer", addr))
		return nil
	}

	if _, err := c.api.DisablePeer(ctx, &apipb.DisablePeerRequest{
		Address:       addr,
		Communication: reason,
	}); err != nil {
		return fmt.Errorf("disable peer %s: %w", addr, err)
	}
	c.logger.Info("disabled BGP peer", slog.String("peer", addr), slog.String("reason", reason))
	return nil
}

// Close releases the underlying gRPC connection. After Close, all methods
// return ErrClientClosed.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close bgpredist client: %w", err)
	}

	c.logger.Info("bgpredist gRPC client closed")

	return nil
}
