package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/vrouted/vrouted/internal/config"
)

// handleSIGHUP reloads the log level and reconciles the declarative node
// list on every SIGHUP. Blocks until ctx is cancelled.
func (d *daemon) handleSIGHUP(ctx context.Context, sig <-chan os.Signal, configPath string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			d.logger.Info("received SIGHUP, reloading configuration")
			d.reload(ctx, configPath)
		}
	}
}

func (d *daemon) reload(ctx context.Context, configPath string) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		d.logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	newLevel := config.ParseLogLevel(cfg.Log.Level)
	d.logLevel.Set(newLevel)

	created, removed := d.reconcileNodes(ctx, cfg.Nodes)
	d.logger.Info("configuration reloaded",
		slog.String("log_level", newLevel.String()),
		slog.Int("nodes_created", created),
		slog.Int("nodes_removed", removed))
}

// reconcileNodes diffs cfg against the currently running node set. New ids
// are started; ids no longer present are torn down. Nodes present in both
// old and new config are left running as-is -- the engine has no in-place
// reconfiguration path for port count or external range, so changing those
// fields for an existing node id requires a full daemon restart.
func (d *daemon) reconcileNodes(ctx context.Context, desired []config.NodeConfig) (created, removed int) {
	want := make(map[string]config.NodeConfig, len(desired))
	for _, nc := range desired {
		want[nc.ID] = nc
	}

	for id, nr := range d.nodes {
		if _, ok := want[id]; !ok {
			nr.cancel()
			closeTransports(nr.transports)
			d.mgr.RemoveNode(nr.id)
			delete(d.nodes, id)
			removed++
		}
	}

	for id, nc := range want {
		if _, ok := d.nodes[id]; ok {
			continue
		}
		spawn := detachedSpawner(d.logger, "node:"+id)
		if err := d.startNode(ctx, spawn, nc); err != nil {
			d.logger.Error("failed to start reconciled node", slog.String("node_id", id), slog.String("error", err.Error()))
			continue
		}
		created++
	}

	return created, removed
}
