package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// controlAddr is the vrouted control socket address (host:port), set via
	// the persistent --addr flag.
	controlAddr string

	// nodeID is the target node's router id, set via the persistent --node
	// flag.
	nodeID uint32

	// metricsAddr is the vrouted metrics/debug HTTP address "show" reads
	// node snapshots from, set via the persistent --metrics-addr flag.
	metricsAddr string
)

// rootCmd is the top-level cobra command for vrouterctl.
var rootCmd = &cobra.Command{
	Use:   "vrouterctl",
	Short: "Control client for the vrouted distance-vector/NAT engine",
	Long:  "vrouterctl sends control verbs (§4.3) to a running vrouted node over its native UDP control socket.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", "127.0.0.1:9900", "vrouted control socket address")
	rootCmd.PersistentFlags().Uint32Var(&nodeID, "node", 0, "target node's router id")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9100", "vrouted metrics/debug HTTP address (for show)")

	rootCmd.AddCommand(triggerDVCmd())
	rootCmd.AddCommand(releaseNATCmd())
	rootCmd.AddCommand(setWeightCmd())
	rootCmd.AddCommand(addHostCmd())
	rootCmd.AddCommand(blockCmd())
	rootCmd.AddCommand(unblockCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
