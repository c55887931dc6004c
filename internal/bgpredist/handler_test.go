package bgpredist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vrouted/vrouted/internal/bgpredist"
	"github.com/vrouted/vrouted/internal/router"
)

// -------------------------------------------------------------------------
// Mock GoBGP Client
// -------------------------------------------------------------------------

const (
	methodDisablePeer = "DisablePeer"
	methodEnablePeer  = "EnablePeer"
)

type mockCall struct {
	method string
	addr   string
}

type mockClient struct {
	mu    sync.Mutex
	calls []mockCall
}

func (m *mockClient) SetPeerAdmin(_ context.Context, addr string, up bool, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	method := methodDisablePeer
	if up {
		method = methodEnablePeer
	}
	m.calls = append(m.calls, mockCall{method: method, addr: addr})
	return nil
}

func (m *mockClient) Close() error { return nil }

func (m *mockClient) snapshot() []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockCall(nil), m.calls...)
}

// -------------------------------------------------------------------------
// Fake Snapshotter
// -------------------------------------------------------------------------

type fakeSnapshotter struct {
	mu    sync.Mutex
	table map[uint32]router.RouteEntry
	err   error
}

func (f *fakeSnapshotter) Snapshot(nodeID uint32) (router.NodeSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return router.NodeSnapshot{}, f.err
	}
	table := make(map[uint32]router.RouteEntry, len(f.table))
	for ip, e := range f.table {
		table[ip] = e
	}
	return router.NodeSnapshot{ID: nodeID, RoutingTable: table}, nil
}

func (f *fakeSnapshotter) setEntry(ip uint32, e router.RouteEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table[ip] = e
}

func mustIP(t *testing.T, s string) uint32 {
	t.Helper()
	ip, err := router.ParseIP(s)
	if err != nil {
		t.Fatalf("ParseIP(%q): %v", s, err)
	}
	return ip
}

func TestHandlerDisablesPeerOnPoison(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	handler, err := bgpredist.NewHandler(bgpredist.HandlerConfig{
		Client:  client,
		Watched: []bgpredist.WatchedHost{{IP: "10.0.0.5", PeerAddr: "10.1.1.1"}},
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	ip := mustIP(t, "10.0.0.5")
	snap := &fakeSnapshotter{table: map[uint32]router.RouteEntry{
		ip: {Distance: 2, Port: 1},
	}}

	changes := make(chan router.RouteChange, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- handler.Run(ctx, changes, snap) }()

	// First change observes a reachable route: no action, just
	// establishing the baseline.
	changes <- router.RouteChange{NodeID: 1}
	time.Sleep(50 * time.Millisecond)
	if calls := client.snapshot(); len(calls) != 0 {
		t.Fatalf("calls after initial reachable snapshot = %v, want none", calls)
	}

	// Poison the route, then deliver another change notification.
	snap.setEntry(ip, router.RouteEntry{Distance: -1, Port: 1})
	changes <- router.RouteChange{NodeID: 1}
	time.Sleep(50 * time.Millisecond)

	calls := client.snapshot()
	if len(calls) != 1 || calls[0].method != methodDisablePeer || calls[0].addr != "10.1.1.1" {
		t.Fatalf("calls after poison = %v, want one DisablePeer(10.1.1.1)", calls)
	}

	// Route becomes reachable again.
	snap.setEntry(ip, router.RouteEntry{Distance: 3, Port: 1})
	changes <- router.RouteChange{NodeID: 1}
	time.Sleep(50 * time.Millisecond)

	calls = client.snapshot()
	if len(calls) != 2 || calls[1].method != methodEnablePeer || calls[1].addr != "10.1.1.1" {
		t.Fatalf("calls after recovery = %v, want a second EnablePeer(10.1.1.1)", calls)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Handler.Run did not return after context cancellation")
	}
}

func TestHandlerIgnoresRepeatedState(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	handler, err := bgpredist.NewHandler(bgpredist.HandlerConfig{
		Client:  client,
		Watched: []bgpredist.WatchedHost{{IP: "10.0.0.5", PeerAddr: "10.1.1.1"}},
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	ip := mustIP(t, "10.0.0.5")
	snap := &fakeSnapshotter{table: map[uint32]router.RouteEntry{
		ip: {Distance: -1, Port: 1},
	}}

	changes := make(chan router.RouteChange, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- handler.Run(ctx, changes, snap) }()

	for range 3 {
		changes <- router.RouteChange{NodeID: 1}
	}
	time.Sleep(50 * time.Millisecond)

	// The host starts poisoned and stays poisoned: only the first
	// observation crosses the "known" threshold, producing exactly one
	// DisablePeer call, never more.
	if calls := client.snapshot(); len(calls) != 1 {
		t.Fatalf("calls = %v, want exactly 1", calls)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Handler.Run did not return after context cancellation")
	}
}

func TestHandlerClosedChannelStopsRun(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	handler, err := bgpredist.NewHandler(bgpredist.HandlerConfig{Client: client})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	changes := make(chan router.RouteChange)
	close(changes)

	snap := &fakeSnapshotter{table: map[uint32]router.RouteEntry{}}

	errCh := make(chan error, 1)
	go func() { errCh <- handler.Run(context.Background(), changes, snap) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Run did not return after channel closed")
	}
}

func TestNewHandlerInvalidWatchedHost(t *testing.T) {
	t.Parallel()

	_, err := bgpredist.NewHandler(bgpredist.HandlerConfig{
		Client:  &mockClient{},
		Watched: []bgpredist.WatchedHost{{IP: "not-an-ip", PeerAddr: "10.1.1.1"}},
	})
	if err == nil {
		t.Fatal("NewHandler with invalid watched host IP: want error, got nil")
	}
}
