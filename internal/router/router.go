package router

import (
	"errors"
	"fmt"
)

// Handle return values.
const (
	// Drop means the packet is silently discarded.
	Drop = -1

	// LocalDeliver means the destination is ours, or is unknown/unreachable
	// and should receive default local handling.
	LocalDeliver = 1
)

// Sentinel errors for Router construction and setup.
var (
	ErrInvalidPortCount = errors.New("port count must be positive")
)

// RouteEntry is one row of the routing table.
type RouteEntry struct {
	// Distance is the additive hop-weight to ip. -1 means unreachable
	// (poisoned).
	Distance int32

	// Port is the local egress port for this route.
	Port uint16

	// NextHopID is the router id that advertised this route, used for
	// split-horizon loop avoidance during DV absorption.
	NextHopID uint32
}

// RouterBase is the capability interface a harness holds engines through.
// It declares exactly the two entry points the engine exposes: Init, which
// establishes topology, and Handle, which processes one packet.
type RouterBase interface {
	Init(portNum, externalPort int, externalAddr, availableAddr string) error
	Handle(inPort int, buf []byte) int
}

// Router is the engine: a single, synchronous, stateful packet processor.
// All state is established by Init and mutated only from within Handle; the
// caller must never invoke Handle concurrently on the same Router.
type Router struct {
	id uint32

	portNum      int
	externalPort int
	portWeight   []int32

	table map[uint32]RouteEntry

	forward map[uint32]uint32 // internal src -> external addr
	reverse map[uint32]uint32 // external addr -> internal src
	pool    []uint32          // LIFO of available external addresses

	blocked map[uint32]struct{}
}

// NewRouter returns a fresh engine instance with a process-wide-unique
// router id. It satisfies RouterBase so a harness can hold it polymorphically.
func NewRouter() RouterBase {
	return &Router{
		id:      routerIDs.Allocate(),
		table:   make(map[uint32]RouteEntry),
		forward: make(map[uint32]uint32),
		reverse: make(map[uint32]uint32),
		blocked: make(map[uint32]struct{}),
	}
}

// ID returns the router's process-wide-unique identity.
func (r *Router) ID() uint32 {
	return r.id
}

// Init establishes the port count, zeroes the default port weights, and (if
// externalPort is nonzero) populates the external routing range and the NAT
// address pool.
func (r *Router) Init(portNum, externalPort int, externalAddr, availableAddr string) error {
	if portNum <= 0 {
		return fmt.Errorf("router init: %w", ErrInvalidPortCount)
	}

	r.portNum = portNum
	r.externalPort = externalPort
	r.portWeight = make([]int32, portNum)
	for p := range r.portWeight {
		r.portWeight[p] = -1
	}
	for _, p := range [3]int{0, 1, externalPort} {
		if p >= 0 && p < portNum {
			r.portWeight[p] = 0
		}
	}

	if externalPort == 0 {
		return nil
	}

	if externalAddr != "" {
		first, last, err := ParseCIDR(externalAddr)
		if err != nil {
			return fmt.Errorf("router init: external range: %w", err)
		}
		forEachInRange(first, last, func(ip uint32) {
			r.table[ip] = RouteEntry{Distance: 0, Port: uint16(externalPort), NextHopID: 0}
		})
	}

	if availableAddr != "" {
		first, last, err := ParseCIDR(availableAddr)
		if err != nil {
			return fmt.Errorf("router init: pool range: %w", err)
		}
		forEachInRange(first, last, func(ip uint32) {
			r.pool = append(r.pool, ip)
		})
	}

	return nil
}

// Handle classifies buf by header type and dispatches to the matching
// handler. See the package-level result constants for the return contract.
func (r *Router) Handle(inPort int, buf []byte) int {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Drop
	}

	switch h.Type {
	case TypeData:
		return r.forwardData(inPort, buf, h)
	case TypeDV:
		return r.absorbDV(inPort, buf, h)
	case TypeControl:
		return r.applyControl(buf, h)
	default:
		return Drop
	}
}

// forwardData implements §4.2's forwarding decision: blocklist check,
// then either inbound (external-port) reverse-NAT rewriting followed by a
// routing lookup, or a routing lookup followed by outbound NAT allocation.
func (r *Router) forwardData(inPort int, buf []byte, h Header) int {
	if _, blocked := r.blocked[h.Src]; blocked {
		return Drop
	}

	// externalPort 0 means the node has no external realm (see Init), so
	// neither NAT branch applies.
	hasExternal := r.externalPort != 0

	if hasExternal && inPort == r.externalPort {
		internalAddr, ok := r.reverse[h.Dst]
		if !ok {
			return Drop
		}
		h.Dst = internalAddr
		if err := EncodeHeader(buf, h); err != nil {
			return Drop
		}

		entry, ok := r.table[internalAddr]
		if !ok || entry.Distance == -1 {
			return LocalDeliver
		}
		return int(entry.Port)
	}

	entry, ok := r.table[h.Dst]
	if !ok || entry.Distance == -1 {
		return LocalDeliver
	}

	if hasExternal && int(entry.Port) == r.externalPort {
		ext, ok := r.forward[h.Src]
		if !ok {
			if len(r.pool) == 0 {
				return Drop
			}
			ext = r.pool[len(r.pool)-1]
			r.pool = r.pool[:len(r.pool)-1]
			r.forward[h.Src] = ext
			r.reverse[ext] = h.Src
		}
		h.Src = ext
		if err := EncodeHeader(buf, h); err != nil {
			return Drop
		}
	}

	return int(entry.Port)
}
