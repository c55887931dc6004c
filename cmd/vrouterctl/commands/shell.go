package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"trigger-dv", "Make the node emit its current distance vector (vrouted's control listener does not send it to neighbors)"},
	{"release-nat <internal-ip>", "Release an internal host's NAT binding back to the external address pool"},
	{"set-weight <port> <weight>", "Set a port's link weight, or -1 to poison"},
	{"add-host <port> <ip>", "Register a directly attached host on a port"},
	{"block <ip>", "Drop data packets whose source is an IP"},
	{"unblock <ip>", "Remove a previously applied block"},
	{"show", "Print every node's routing table, NAT bindings, and block set"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive vrouterctl shell",
		Long:  "Launches a simple REPL that accepts vrouterctl subcommands against the --addr/--node already given on the command line. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("vrouterctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					args := append(strings.Fields(line), "--addr", controlAddr, "--node", fmt.Sprint(nodeID))
					rootCmd.SetArgs(args)

					if err := rootCmd.Execute(); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("vrouterctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			return nil
		},
	}
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("vrouterctl interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-30s %s\n", cmd.name, cmd.desc)
	}

	fmt.Println()
}
