package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// httpTimeout bounds how long "show" waits for vrouted's /debug/nodes
// endpoint before giving up.
const httpTimeout = 3 * time.Second

// nodeSnapshotView mirrors cmd/vrouted's debug.go wire shape. It is kept as
// a separate declaration here rather than shared through an internal
// package: client and server DTOs stay independent of each other across
// the process boundary so either side can evolve its JSON shape on its own.
type nodeSnapshotView struct {
	ID            uint32            `json:"id"`
	RoutingTable  map[string]string `json:"routing_table"`
	PortWeight    []int32           `json:"port_weight"`
	PoolAvailable int               `json:"pool_available"`
	NATBindings   map[string]string `json:"nat_bindings"`
	Blocked       []string          `json:"blocked"`
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every node's routing table, NAT bindings, and block set",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShow(metricsAddr)
		},
	}
}

func runShow(addr string) error {
	client := &http.Client{Timeout: httpTimeout}

	resp, err := client.Get(fmt.Sprintf("http://%s/debug/nodes", addr))
	if err != nil {
		return fmt.Errorf("fetch node state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fetch node state: status %d: %s", resp.StatusCode, body)
	}

	var views []nodeSnapshotView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return fmt.Errorf("decode node state: %w", err)
	}

	for _, v := range views {
		printNodeSnapshot(v)
	}
	return nil
}

func printNodeSnapshot(v nodeSnapshotView) {
	fmt.Printf("node %d\n", v.ID)
	fmt.Printf("  port_weight:    %v\n", v.PortWeight)
	fmt.Printf("  pool_available: %d\n", v.PoolAvailable)

	fmt.Println("  routing_table:")
	for ip, route := range v.RoutingTable {
		fmt.Printf("    %-16s %s\n", ip, route)
	}

	fmt.Println("  nat_bindings:")
	for internal, ext := range v.NATBindings {
		fmt.Printf("    %-16s -> %s\n", internal, ext)
	}

	fmt.Println("  blocked:")
	for _, ip := range v.Blocked {
		fmt.Printf("    %s\n", ip)
	}
}
