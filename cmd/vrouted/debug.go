package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/vrouted/vrouted/internal/router"
	appversion "github.com/vrouted/vrouted/internal/version"
)

// nodeSnapshotView is the JSON wire shape for one node's introspection
// snapshot, served over the metrics HTTP server's /debug/nodes endpoint.
// It exists separately from router.NodeSnapshot so the wire format stays
// stable even if the internal snapshot struct grows fields vrouterctl's
// show command doesn't need.
type nodeSnapshotView struct {
	ID            uint32            `json:"id"`
	RoutingTable  map[string]string `json:"routing_table"`
	PortWeight    []int32           `json:"port_weight"`
	PoolAvailable int               `json:"pool_available"`
	NATBindings   map[string]string `json:"nat_bindings"`
	Blocked       []string          `json:"blocked"`
}

// nodeLister is the subset of *router.Manager the debug handler depends on.
type nodeLister interface {
	NodeIDs() []uint32
	Snapshot(nodeID uint32) (router.NodeSnapshot, error)
}

// debugNodesHandler serves every registered node's Snapshot as JSON, backing
// vrouterctl's "show" subcommand. It reuses the plain net/http mux already
// hosting /metrics rather than inventing a second protocol for introspection.
func debugNodesHandler(mgr nodeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ids := mgr.NodeIDs()
		views := make([]nodeSnapshotView, 0, len(ids))
		for _, id := range ids {
			snap, err := mgr.Snapshot(id)
			if err != nil {
				continue
			}
			views = append(views, toView(snap))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// debugVersionHandler serves the running daemon's build information as JSON,
// letting vrouterctl or an operator confirm which build is live without
// shelling into the host.
func debugVersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(appversion.Current("vrouted")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func toView(snap router.NodeSnapshot) nodeSnapshotView {
	v := nodeSnapshotView{
		ID:            snap.ID,
		RoutingTable:  make(map[string]string, len(snap.RoutingTable)),
		PortWeight:    snap.PortWeight,
		PoolAvailable: snap.PoolAvailable,
		NATBindings:   make(map[string]string, len(snap.NATBindings)),
		Blocked:       make([]string, 0, len(snap.Blocked)),
	}

	for ip, e := range snap.RoutingTable {
		v.RoutingTable[formatIP(ip)] = routeEntryString(e)
	}
	for internal, ext := range snap.NATBindings {
		v.NATBindings[formatIP(internal)] = formatIP(ext)
	}
	for _, ip := range snap.Blocked {
		v.Blocked = append(v.Blocked, formatIP(ip))
	}

	return v
}

// formatIP renders a host-order uint32 as a dotted-quad string.
func formatIP(ip uint32) string {
	var octets [4]byte
	binary.BigEndian.PutUint32(octets[:], ip)
	return net.IP(octets[:]).String()
}

func routeEntryString(e router.RouteEntry) string {
	if e.Distance == -1 {
		return fmt.Sprintf("unreachable via port %d", e.Port)
	}
	return fmt.Sprintf("distance %d via port %d next_hop %d", e.Distance, e.Port, e.NextHopID)
}
