package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Control verbs, duplicated from internal/router's unexported set since
// §4.3 defines them as part of the wire contract, not an implementation
// detail private to the engine.
const (
	verbTriggerDV     = '0'
	verbReleaseNAT    = '1'
	verbSetPortWeight = '2'
	verbAddHost       = '3'
	verbBlock         = '5'
	verbUnblock       = '6'
)

func triggerDVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger-dv",
		Short: "Make the node emit its current distance vector (vrouted's control listener does not send it to neighbors)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runControl(verbTriggerDV, "")
		},
	}
}

func releaseNATCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-nat <internal-ip>",
		Short: "Release an internal host's NAT binding back to the external address pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runControl(verbReleaseNAT, args[0])
		},
	}
}

func setWeightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-weight <port> <weight>",
		Short: "Set a port's link weight, or -1 to poison routes learned through it",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runControl(verbSetPortWeight, args[0]+" "+args[1])
		},
	}
}

func addHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-host <port> <ip>",
		Short: "Register a directly attached host on a port at distance 0",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runControl(verbAddHost, args[0]+" "+args[1])
		},
	}
}

func blockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <ip>",
		Short: "Drop data packets whose source is an IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runControl(verbBlock, args[0])
		},
	}
}

func unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <ip>",
		Short: "Remove a previously applied block on an IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runControl(verbUnblock, args[0])
		},
	}
}

func runControl(verb byte, arg string) error {
	result, err := sendControl(controlAddr, nodeID, verb, arg)
	if err != nil {
		return fmt.Errorf("send control command: %w", err)
	}
	fmt.Println(describeResult(result))
	return nil
}
