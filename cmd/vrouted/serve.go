package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vrouted/vrouted/internal/bgpredist"
	"github.com/vrouted/vrouted/internal/config"
	"github.com/vrouted/vrouted/internal/netio"
	"github.com/vrouted/vrouted/internal/router"
	"github.com/vrouted/vrouted/internal/vrmetrics"
)

// netListenConfig is reused for the metrics HTTP listener so tests can dial
// through a consistent code path.
var netListenConfig = net.ListenConfig{}

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}

// shutdownTimeout bounds how long the metrics HTTP server is given to drain
// in-flight requests during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the vrouted daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
}

// serve loads configuration and runs the daemon until SIGINT/SIGTERM.
func serve(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, logLevel)

	logger.Info("vrouted starting",
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("control_addr", cfg.Router.ControlAddr),
		slog.Int("nodes", len(cfg.Nodes)))

	reg := prometheus.NewRegistry()
	collector := vrmetrics.NewCollector(reg)

	mgr := router.NewManager(logger, router.WithManagerMetrics(collector))
	defer mgr.Close()

	d := &daemon{
		mgr:        mgr,
		logger:     logger,
		logLevel:   logLevel,
		dvInterval: cfg.Router.DVBroadcastInterval,
		nodes:      make(map[string]*nodeRuntime),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	if err := d.startNodes(gCtx, errgroupSpawner(g), cfg.Nodes); err != nil {
		return fmt.Errorf("start nodes: %w", err)
	}
	defer d.closeAllNodes()

	ctrl, err := newControlListener(cfg.Router.ControlAddr, mgr, logger)
	if err != nil {
		return fmt.Errorf("start control listener: %w", err)
	}
	defer ctrl.Close()
	g.Go(func() error { return ctrl.Run(gCtx) })

	metricsSrv := newMetricsServer(cfg.Metrics, reg, mgr)
	g.Go(func() error { return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr) })

	g.Go(func() error { return runWatchdog(gCtx, logger) })

	bgpHandler, bgpClient, err := startBGPRedist(gCtx, g, cfg.BGPRedist, d, logger)
	if err != nil {
		return fmt.Errorf("start bgp redistribution: %w", err)
	}
	_ = bgpHandler
	if bgpClient != nil {
		defer func() {
			if cerr := bgpClient.Close(); cerr != nil {
				logger.Warn("close bgp client failed", slog.String("error", cerr.Error()))
			}
		}()
	}

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		d.handleSIGHUP(gCtx, sigHUP, path)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil && gCtx.Err() == nil {
		return fmt.Errorf("run daemon: %w", err)
	}

	logger.Info("vrouted stopped")
	return nil
}

// nodeRuntime bundles the running state for one configured node, so the
// SIGHUP reconciler can tear it down cleanly.
type nodeRuntime struct {
	id         uint32
	cfg        config.NodeConfig
	transports []*netio.PortTransport
	ports      []netio.PortConfig
	cancel     context.CancelFunc
}

// daemon owns the Manager and the set of currently-running nodes.
type daemon struct {
	mgr        *router.Manager
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	dvInterval time.Duration
	nodes      map[string]*nodeRuntime
}

// spawner runs a goroutine under whatever supervision its caller provides:
// an *errgroup.Group's Go method at initial startup, or a detached
// log-on-error goroutine for nodes started later by SIGHUP reconciliation
// (see reload.go), which has no single errgroup left to join.
type spawner func(func() error)

func errgroupSpawner(g *errgroup.Group) spawner {
	return g.Go
}

func detachedSpawner(logger *slog.Logger, label string) spawner {
	return func(f func() error) {
		go func() {
			if err := f(); err != nil {
				logger.Error("goroutine failed", slog.String("label", label), slog.String("error", err.Error()))
			}
		}()
	}
}

// startNodes creates every configured node, binds its ports and starts its
// Receiver and DV-broadcast ticker under spawn.
func (d *daemon) startNodes(ctx context.Context, spawn spawner, nodes []config.NodeConfig) error {
	for _, nc := range nodes {
		if err := d.startNode(ctx, spawn, nc); err != nil {
			return fmt.Errorf("start node %q: %w", nc.ID, err)
		}
	}
	return nil
}

func (d *daemon) startNode(ctx context.Context, spawn spawner, nc config.NodeConfig) error {
	id, err := d.mgr.NewNode(nc.PortNum, nc.ExternalPort, nc.ExternalAddr, nc.AvailableAddr)
	if err != nil {
		return err
	}

	ports, transports, err := bindNodePorts(nc)
	if err != nil {
		d.mgr.RemoveNode(id)
		return err
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	recv := netio.NewReceiver(id, d.mgr, ports, d.logger)
	spawn(func() error {
		err := recv.Run(nodeCtx)
		if err != nil && nodeCtx.Err() == nil {
			return fmt.Errorf("node %q receiver: %w", nc.ID, err)
		}
		return nil
	})

	spawn(func() error {
		runDVTicker(nodeCtx, d.mgr, id, d.dvInterval, ports, d.logger)
		return nil
	})

	d.nodes[nc.ID] = &nodeRuntime{id: id, cfg: nc, transports: transports, ports: ports, cancel: cancel}

	d.logger.Info("node started", slog.String("node_id", nc.ID), slog.Uint64("router_id", uint64(id)))
	return nil
}

// bindNodePorts opens a PortTransport for every entry in nc.ListenAddrs and
// pairs it with the configured neighbor address, if any.
func bindNodePorts(nc config.NodeConfig) ([]netio.PortConfig, []*netio.PortTransport, error) {
	ports := make([]netio.PortConfig, 0, len(nc.ListenAddrs))
	transports := make([]*netio.PortTransport, 0, len(nc.ListenAddrs))

	for portStr, addr := range nc.ListenAddrs {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			closeTransports(transports)
			return nil, nil, fmt.Errorf("listen_addrs key %q: %w", portStr, err)
		}

		tr, err := netio.NewPortTransport(addr)
		if err != nil {
			closeTransports(transports)
			return nil, nil, fmt.Errorf("bind port %d at %q: %w", port, addr, err)
		}
		transports = append(transports, tr)

		var neighbor netip.AddrPort
		if n, ok := nc.Neighbors[portStr]; ok {
			neighbor, err = netip.ParseAddrPort(n)
			if err != nil {
				closeTransports(transports)
				return nil, nil, fmt.Errorf("neighbor addr for port %d: %w", port, err)
			}
		}

		ports = append(ports, netio.PortConfig{Port: port, Transport: tr, Neighbor: neighbor})
	}

	return ports, transports, nil
}

func closeTransports(transports []*netio.PortTransport) {
	for _, tr := range transports {
		_ = tr.Close()
	}
}

// closeAllNodes cancels every node's receiver/ticker goroutines and closes
// their sockets. Used on final shutdown.
func (d *daemon) closeAllNodes() {
	for id, nr := range d.nodes {
		nr.cancel()
		closeTransports(nr.transports)
		delete(d.nodes, id)
	}
}

// startBGPRedist wires internal/bgpredist's Handler to the Manager's
// RouteChanges() feed for the configured watched node, if enabled.
func startBGPRedist(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.BGPRedistConfig,
	d *daemon,
	logger *slog.Logger,
) (*bgpredist.Handler, bgpredist.Client, error) {
	if !cfg.Enabled {
		logger.Info("bgp redistribution disabled")
		return nil, nil, nil
	}

	client, err := bgpredist.NewGRPCClient(bgpredist.GRPCClientConfig{Addr: cfg.Addr}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create bgpredist client: %w", err)
	}

	watched := make([]bgpredist.WatchedHost, 0, len(cfg.Watched))
	for _, w := range cfg.Watched {
		watched = append(watched, bgpredist.WatchedHost{IP: w.IP, PeerAddr: w.PeerAddr})
	}

	handler, err := bgpredist.NewHandler(bgpredist.HandlerConfig{
		Client:  client,
		Watched: watched,
		Logger:  logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create bgpredist handler: %w", err)
	}

	g.Go(func() error {
		return handler.Run(ctx, d.mgr.RouteChanges(), d.mgr)
	})

	logger.Info("bgp redistribution enabled", slog.String("addr", cfg.Addr), slog.Int("watched", len(watched)))

	return handler, client, nil
}

// newMetricsServer builds the HTTP server hosting Prometheus metrics,
// pprof profiling endpoints, and the /debug/nodes engine-state introspection
// endpoint vrouterctl's "show" subcommand reads from.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, mgr nodeLister) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/nodes", debugNodesHandler(mgr))
	mux.HandleFunc("/debug/version", debugVersionHandler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := &netListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !isServerClosed(err) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func gracefulShutdown(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
