// Command vrouted is the daemon harness around internal/router: it owns
// configuration, sockets, timers, metrics and systemd integration for one
// or more simulated Router nodes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appversion "github.com/vrouted/vrouted/internal/version"
)

var configPath string

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vrouted",
		Short:         "Distance-vector/NAT packet-processing engine daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print vrouted build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("vrouted"))
		},
	}
}
