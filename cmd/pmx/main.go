package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "panoramix.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pmx",
		Short: "Panoramix: negotiated consensus and hash-chained endpoint boxes",
		Long: `Panoramix lets peers negotiate texts to unanimous, signed consensus and
moves messages through endpoints whose boxes are hash chained for audit.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newKeysCmd())
	cmd.AddCommand(newPeerCmd())
	cmd.AddCommand(newNegotiationCmd())
	cmd.AddCommand(newEndpointCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newProofCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pmx %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
