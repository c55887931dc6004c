// Package config manages vrouted daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete vrouted configuration.
type Config struct {
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Router    RouterConfig    `koanf:"router"`
	Nodes     []NodeConfig    `koanf:"nodes"`
	BGPRedist BGPRedistConfig `koanf:"bgp_redist"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// RouterConfig holds daemon-wide settings shared by every node declared in
// Nodes; NodeConfig has no per-node override for them.
type RouterConfig struct {
	// DVBroadcastInterval is the period between unsolicited DV
	// broadcasts each node emits on its own initiative.
	DVBroadcastInterval time.Duration `koanf:"dv_broadcast_interval"`

	// ControlAddr is the UDP listen address vrouterctl sends CONTROL
	// packets to (e.g., ":9900").
	ControlAddr string `koanf:"control_addr"`
}

// NodeConfig describes one simulated router node from the configuration
// file. Each entry creates a Router on daemon startup and SIGHUP reload.
type NodeConfig struct {
	// ID identifies the node within this config file; used only for
	// reconciliation (diffing Nodes on SIGHUP reload), not the engine's
	// own assigned router id.
	ID string `koanf:"id"`

	// PortNum is the total number of ports, the external port included,
	// passed to Init.
	PortNum int `koanf:"port_num"`

	// ExternalPort is the index of the externally-facing port passed to
	// Init.
	ExternalPort int `koanf:"external_port"`

	// ExternalAddr is the CIDR describing the external address range,
	// e.g. "8.8.8.0/30". Must be /24 or narrower (§ Validate).
	ExternalAddr string `koanf:"external_addr"`

	// AvailableAddr is the CIDR describing the NAT pool of addresses
	// available for outbound allocation.
	AvailableAddr string `koanf:"available_addr"`

	// ListenAddrs maps port index to the UDP address internal/netio
	// binds for that port, e.g. {"0": "127.0.0.1:9000"}.
	ListenAddrs map[string]string `koanf:"listen_addrs"`

	// Neighbors maps port index to the UDP address packets forwarded out,
	// or DV broadcasts emitted on, that port are sent to, e.g.
	// {"0": "127.0.0.1:9100"}. A port absent here only receives; it never
	// originates traffic of its own.
	Neighbors map[string]string `koanf:"neighbors"`
}

// NodeKey returns a unique identifier for the node. Used for diffing nodes
// on SIGHUP reload and for detecting duplicate entries.
func (nc NodeConfig) NodeKey() string {
	return nc.ID
}

// BGPRedistConfig enables mirroring DV reachability of watched hosts into
// GoBGP peer admin state. Disabled (the zero value) by default: most
// topologies exercised by vrouted have no GoBGP instance to talk to.
type BGPRedistConfig struct {
	// Enabled turns on the internal/bgpredist handler goroutine.
	Enabled bool `koanf:"enabled"`

	// Addr is the GoBGP gRPC listen address (e.g. "127.0.0.1:50051").
	Addr string `koanf:"addr"`

	// NodeID is the NodeConfig.ID whose RouteChanges the handler watches.
	NodeID string `koanf:"node_id"`

	// Watched lists the internal hosts whose reachability drives a BGP
	// peer's admin state.
	Watched []WatchedHostConfig `koanf:"watched"`
}

// WatchedHostConfig binds one internal host address to the BGP peer
// address that should be disabled/enabled as that host's route is
// poisoned/restored.
type WatchedHostConfig struct {
	IP       string `koanf:"ip"`
	PeerAddr string `koanf:"peer_addr"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Router: RouterConfig{
			DVBroadcastInterval: 5 * time.Second,
			ControlAddr:         ":9900",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for vrouted configuration.
// Variables are named GOVR_<section>_<key>, e.g., GOVR_ROUTER_CONTROL_ADDR.
const envPrefix = "GOVR_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOVR_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOVR_METRICS_ADDR          -> metrics.addr
//	GOVR_METRICS_PATH          -> metrics.path
//	GOVR_LOG_LEVEL             -> log.level
//	GOVR_LOG_FORMAT            -> log.format
//	GOVR_ROUTER_CONTROL_ADDR   -> router.control_addr
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// GOVR_METRICS_ADDR -> metrics.addr (strip prefix, lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOVR_ROUTER_CONTROL_ADDR -> router.control_addr.
// Strips the GOVR_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., keeping underscores inside the key name.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"router.dv_broadcast_interval": defaults.Router.DVBroadcastInterval.String(),
		"router.control_addr":          defaults.Router.ControlAddr,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyControlAddr indicates the control-plane listen address is empty.
	ErrEmptyControlAddr = errors.New("router.control_addr must not be empty")

	// ErrInvalidBroadcastInterval indicates the DV broadcast interval is not positive.
	ErrInvalidBroadcastInterval = errors.New("router.dv_broadcast_interval must be > 0")

	// ErrEmptyNodeID indicates a node entry has no id.
	ErrEmptyNodeID = errors.New("node id must not be empty")

	// ErrInvalidExternalCIDR indicates a node's external_addr CIDR is malformed.
	ErrInvalidExternalCIDR = errors.New("node external_addr is not a valid CIDR")

	// ErrExternalCIDRTooWide indicates a node's external_addr range would
	// require enumerating more than a /24 worth of addresses.
	ErrExternalCIDRTooWide = errors.New("node external_addr must be /24 or narrower")

	// ErrDuplicateNodeKey indicates two nodes share the same id.
	ErrDuplicateNodeKey = errors.New("duplicate node id")

	// ErrEmptyBGPRedistAddr indicates bgp_redist is enabled but addr is empty.
	ErrEmptyBGPRedistAddr = errors.New("bgp_redist.addr must not be empty when enabled")

	// ErrBGPRedistUnknownNode indicates bgp_redist.node_id names no node in Nodes.
	ErrBGPRedistUnknownNode = errors.New("bgp_redist.node_id does not match any configured node")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Router.ControlAddr == "" {
		return ErrEmptyControlAddr
	}

	if cfg.Router.DVBroadcastInterval <= 0 {
		return ErrInvalidBroadcastInterval
	}

	if err := validateNodes(cfg.Nodes); err != nil {
		return err
	}

	if err := validateBGPRedist(cfg.BGPRedist, cfg.Nodes); err != nil {
		return err
	}

	return nil
}

// validateBGPRedist checks the optional GoBGP redistribution block, skipped
// entirely when disabled.
func validateBGPRedist(brc BGPRedistConfig, nodes []NodeConfig) error {
	if !brc.Enabled {
		return nil
	}

	if brc.Addr == "" {
		return ErrEmptyBGPRedistAddr
	}

	for _, nc := range nodes {
		if nc.NodeKey() == brc.NodeID {
			return nil
		}
	}
	return fmt.Errorf("bgp_redist.node_id %q: %w", brc.NodeID, ErrBGPRedistUnknownNode)
}

// validateNodes checks each declarative node entry for correctness.
func validateNodes(nodes []NodeConfig) error {
	seen := make(map[string]struct{}, len(nodes))

	for i, nc := range nodes {
		if nc.ID == "" {
			return fmt.Errorf("nodes[%d]: %w", i, ErrEmptyNodeID)
		}

		if nc.ExternalAddr != "" {
			prefixLen, err := cidrPrefixLen(nc.ExternalAddr)
			if err != nil {
				return fmt.Errorf("nodes[%d]: %w: %w", i, ErrInvalidExternalCIDR, err)
			}
			if prefixLen < 24 {
				return fmt.Errorf("nodes[%d] external_addr %q: %w", i, nc.ExternalAddr, ErrExternalCIDRTooWide)
			}
		}

		key := nc.NodeKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("nodes[%d] id %q: %w", i, key, ErrDuplicateNodeKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// cidrPrefixLen extracts the prefix length from a "x.x.x.x/n" string
// without depending on internal/router (config must not import the engine).
func cidrPrefixLen(cidr string) (int, error) {
	idx := strings.LastIndexByte(cidr, '/')
	if idx < 0 {
		return 0, fmt.Errorf("missing /prefix in %q", cidr)
	}
	var n int
	if _, err := fmt.Sscanf(cidr[idx+1:], "%d", &n); err != nil {
		return 0, fmt.Errorf("parse prefix in %q: %w", cidr, err)
	}
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("prefix %d out of range in %q", n, cidr)
	}
	return n, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
