package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/api"
	"github.com/zulandar/panoramix/internal/proof"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audit API and the proof scheduler",
		Long: `Serves the read-only audit API. When a signing key is configured and
proofs are not disabled, process proofs are refreshed on proofs.schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (default: api.port from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	n, err := openNode(configPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = n.cfg.API.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	switch {
	case n.cfg.Proofs.Disabled:
	case n.issuer == nil:
		fmt.Fprintln(cmd.OutOrStdout(), "No signing key configured; proofs will not be refreshed.")
	default:
		s, err := proof.NewScheduler(n.issuer, n.cfg.Proofs.Schedule)
		if err != nil {
			return err
		}
		go s.Run(ctx)
	}

	return api.Start(ctx, api.StartOpts{
		DB:       n.db,
		Chain:    n.chain,
		Verifier: n.ring,
		Port:     port,
		Out:      cmd.OutOrStdout(),
	})
}
