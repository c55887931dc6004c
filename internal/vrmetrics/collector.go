// Package vrmetrics exposes internal/router engine state as Prometheus
// metrics.
package vrmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "vrouted"
	subsystem = "router"
)

// Label names for router metrics.
const (
	labelNode   = "node_id"
	labelReason = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Router Metrics
// -------------------------------------------------------------------------

// Collector holds all router Prometheus metrics and implements
// router.Collector, so a *Manager can report into it directly.
//
//   - Table/pool/block gauges track per-node engine state size.
//   - DV counters track churn (emitted vs. absorbed) for alerting on
//     flapping topologies.
//   - Dropped counters are labeled by reason for triage.
type Collector struct {
	// RoutingTableSize tracks the current number of entries in each
	// node's routing table.
	RoutingTableSize *prometheus.GaugeVec

	// PoolAvailable tracks the number of unallocated addresses left in
	// each node's NAT pool.
	PoolAvailable *prometheus.GaugeVec

	// BlockedCount tracks the number of blocked source addresses per node.
	BlockedCount *prometheus.GaugeVec

	// DVEmitted counts DV broadcasts produced per node (Handle returning 0).
	DVEmitted *prometheus.CounterVec

	// DVAbsorbed counts incoming DV packets that changed a node's table.
	DVAbsorbed *prometheus.CounterVec

	// Dropped counts packets dropped per node, labeled by reason.
	Dropped *prometheus.CounterVec
}

// NewCollector creates a Collector with all router metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.RoutingTableSize,
		c.PoolAvailable,
		c.BlockedCount,
		c.DVEmitted,
		c.DVAbsorbed,
		c.Dropped,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	nodeLabels := []string{labelNode}
	dropLabels := []string{labelNode, labelReason}

	return &Collector{
		RoutingTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "table_size",
			Help:      "Number of entries in a node's routing table.",
		}, nodeLabels),

		PoolAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "nat_pool_available",
			Help:      "Number of unallocated addresses left in a node's NAT pool.",
		}, nodeLabels),

		BlockedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocked_sources",
			Help:      "Number of blocked source addresses on a node.",
		}, nodeLabels),

		DVEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dv_emitted_total",
			Help:      "Total DV broadcasts produced by a node.",
		}, nodeLabels),

		DVAbsorbed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dv_absorbed_total",
			Help:      "Total incoming DV packets that changed a node's table.",
		}, nodeLabels),

		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_total",
			Help:      "Total packets dropped by a node, labeled by reason.",
		}, dropLabels),
	}
}

// -------------------------------------------------------------------------
// router.Collector implementation
// -------------------------------------------------------------------------

func nodeLabel(nodeID uint32) string {
	return strconv.FormatUint(uint64(nodeID), 10)
}

// SetRoutingTableSize records the current routing table size for a node.
func (c *Collector) SetRoutingTableSize(nodeID uint32, size int) {
	c.RoutingTableSize.WithLabelValues(nodeLabel(nodeID)).Set(float64(size))
}

// SetPoolAvailable records the current NAT pool occupancy for a node.
func (c *Collector) SetPoolAvailable(nodeID uint32, available int) {
	c.PoolAvailable.WithLabelValues(nodeLabel(nodeID)).Set(float64(available))
}

// SetBlockedCount records the current blocked-source count for a node.
func (c *Collector) SetBlockedCount(nodeID uint32, count int) {
	c.BlockedCount.WithLabelValues(nodeLabel(nodeID)).Set(float64(count))
}

// IncDVEmitted increments the DV-emitted counter for a node.
func (c *Collector) IncDVEmitted(nodeID uint32) {
	c.DVEmitted.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncDVAbsorbed increments the DV-absorbed counter for a node.
func (c *Collector) IncDVAbsorbed(nodeID uint32) {
	c.DVAbsorbed.WithLabelValues(nodeLabel(nodeID)).Inc()
}

// IncDropped increments the dropped-packet counter for a node and reason.
func (c *Collector) IncDropped(nodeID uint32, reason string) {
	c.Dropped.WithLabelValues(nodeLabel(nodeID), reason).Inc()
}
