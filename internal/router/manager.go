package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNodeNotFound indicates no node exists for the given router id.
var ErrNodeNotFound = errors.New("node not found")

// notifyChSize bounds the RouteChanges buffer; a harness that falls behind
// drops the oldest-unread notifications rather than blocking Handle.
const notifyChSize = 64

// RouteChange describes one routing-table mutation observed by the Manager,
// delivered to external consumers (BGP redistribution, logging) over
// RouteChanges().
type RouteChange struct {
	// NodeID is the id of the Router whose table changed.
	NodeID uint32

	// Emitted is the DV packet the change produced, as returned by Handle.
	Emitted []byte
}

// Collector receives counters from the Manager. internal/vrmetrics
// implements this against Prometheus; tests may use a no-op or recording
// stub.
type Collector interface {
	SetRoutingTableSize(nodeID uint32, size int)
	SetPoolAvailable(nodeID uint32, available int)
	SetBlockedCount(nodeID uint32, count int)
	IncDVEmitted(nodeID uint32)
	IncDVAbsorbed(nodeID uint32)
	IncDropped(nodeID uint32, reason string)
}

// noopCollector discards every observation.
type noopCollector struct{}

func (noopCollector) SetRoutingTableSize(uint32, int)    {}
func (noopCollector) SetPoolAvailable(uint32, int)       {}
func (noopCollector) SetBlockedCount(uint32, int)        {}
func (noopCollector) IncDVEmitted(uint32)                {}
func (noopCollector) IncDVAbsorbed(uint32)               {}
func (noopCollector) IncDropped(uint32, string)          {}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithManagerMetrics attaches a Collector that the Manager reports into on
// every Handle call.
func WithManagerMetrics(c Collector) ManagerOption {
	return func(m *Manager) {
		m.metrics = c
	}
}

// node pairs a Router with the bookkeeping the Manager needs to serialize
// access and observe its state without reaching into Router internals.
type node struct {
	mu     sync.Mutex
	router *Router
}

// Manager owns a set of Router instances — one per simulated network node —
// assigns them unique ids via NewRouter, and enforces the single-owner
// Handle contract on the harness's behalf: a mutex-guarded registry plus a
// fan-out notification channel for external consumers.
type Manager struct {
	mu    sync.RWMutex
	nodes map[uint32]*node

	metrics Collector
	logger  *slog.Logger

	rawNotifyCh    chan RouteChange
	publicNotifyCh chan RouteChange
}

// NewManager constructs a Manager. A nil logger disables logging; a nil
// Collector is replaced with a no-op implementation.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Manager{
		nodes:          make(map[uint32]*node),
		metrics:        noopCollector{},
		logger:         logger.With(slog.String("component", "router.manager")),
		rawNotifyCh:    make(chan RouteChange, notifyChSize),
		publicNotifyCh: make(chan RouteChange, notifyChSize),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.pump()

	return m
}

// pump fans raw notifications out to the public channel, dropping the
// oldest entry instead of blocking when a consumer falls behind.
func (m *Manager) pump() {
	for change := range m.rawNotifyCh {
		select {
		case m.publicNotifyCh <- change:
		default:
			select {
			case <-m.publicNotifyCh:
			default:
			}
			m.publicNotifyCh <- change
		}
	}
}

// RouteChanges returns the channel external consumers read DV-emit
// notifications from.
func (m *Manager) RouteChanges() <-chan RouteChange {
	return m.publicNotifyCh
}

// Close stops the Manager's notification pump. It does not touch any
// registered node; the harness is expected to have stopped calling Handle
// before Close is invoked.
func (m *Manager) Close() error {
	close(m.rawNotifyCh)
	return nil
}

// NewNode creates and registers a fresh Router, calls Init on it, and
// returns its assigned id.
func (m *Manager) NewNode(portNum, externalPort int, externalAddr, availableAddr string) (uint32, error) {
	r := NewRouter().(*Router)
	if err := r.Init(portNum, externalPort, externalAddr, availableAddr); err != nil {
		return 0, fmt.Errorf("new node: %w", err)
	}

	m.mu.Lock()
	m.nodes[r.id] = &node{router: r}
	m.mu.Unlock()

	m.logger.Info("node created", slog.Uint64("id", uint64(r.id)), slog.Int("ports", portNum))

	return r.id, nil
}

// Handle serializes and forwards a packet to the node with the given id,
// reporting into the attached Collector and RouteChanges() as appropriate.
func (m *Manager) Handle(nodeID uint32, inPort int, buf []byte) (int, error) {
	m.mu.RLock()
	n, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("handle: node %d: %w", nodeID, ErrNodeNotFound)
	}

	inHeader, _ := DecodeHeader(buf)

	n.mu.Lock()
	result := n.router.Handle(inPort, buf)
	n.mu.Unlock()

	switch {
	case result == 0:
		if inHeader.Type == TypeDV {
			m.metrics.IncDVAbsorbed(nodeID)
		}
		m.metrics.IncDVEmitted(nodeID)
		// The emitted DV is usually longer than the inbound packet, so its
		// extent comes from the rewritten header, within buf's capacity.
		out := buf[:cap(buf)]
		if h, err := DecodeHeader(out); err == nil && HeaderSize+int(h.Length) <= len(out) {
			out = out[:HeaderSize+int(h.Length)]
		}
		emitted := append([]byte(nil), out...)
		select {
		case m.rawNotifyCh <- RouteChange{NodeID: nodeID, Emitted: emitted}:
		default:
		}
	case result == Drop:
		m.metrics.IncDropped(nodeID, "handle")
	}

	n.mu.Lock()
	m.metrics.SetRoutingTableSize(nodeID, len(n.router.table))
	m.metrics.SetPoolAvailable(nodeID, len(n.router.pool))
	m.metrics.SetBlockedCount(nodeID, len(n.router.blocked))
	n.mu.Unlock()

	return result, nil
}

// NodeSnapshot is a read-only view of a node's engine state at a point in
// time, used by introspection (vrouterctl show, metrics) without exposing
// mutable Router internals.
type NodeSnapshot struct {
	ID            uint32
	RoutingTable  map[uint32]RouteEntry
	PortWeight    []int32
	PoolAvailable int
	NATBindings   map[uint32]uint32
	Blocked       []uint32
}

// Snapshot returns a copied, read-only view of the node with the given id.
func (m *Manager) Snapshot(nodeID uint32) (NodeSnapshot, error) {
	m.mu.RLock()
	n, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if !ok {
		return NodeSnapshot{}, fmt.Errorf("snapshot: node %d: %w", nodeID, ErrNodeNotFound)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	snap := NodeSnapshot{
		ID:            nodeID,
		RoutingTable:  make(map[uint32]RouteEntry, len(n.router.table)),
		PortWeight:    append([]int32(nil), n.router.portWeight...),
		PoolAvailable: len(n.router.pool),
		NATBindings:   make(map[uint32]uint32, len(n.router.forward)),
		Blocked:       make([]uint32, 0, len(n.router.blocked)),
	}
	for ip, e := range n.router.table {
		snap.RoutingTable[ip] = e
	}
	for internal, ext := range n.router.forward {
		snap.NATBindings[internal] = ext
	}
	for ip := range n.router.blocked {
		snap.Blocked = append(snap.Blocked, ip)
	}

	return snap, nil
}

// RemoveNode unregisters a node. The engine holds no external resources
// (sockets, files) of its own, so removal is just dropping it from the
// registry; any transport bound to it is the harness's responsibility to
// close. Removing an unknown id is a no-op.
func (m *Manager) RemoveNode(nodeID uint32) {
	m.mu.Lock()
	delete(m.nodes, nodeID)
	m.mu.Unlock()

	m.logger.Info("node removed", slog.Uint64("id", uint64(nodeID)))
}

// NodeIDs returns the ids of every node currently registered.
func (m *Manager) NodeIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint32, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	return ids
}
