package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/proof"
)

func newProofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Issue and check signed process proofs",
	}

	cmd.AddCommand(newProofRefreshCmd())
	cmd.AddCommand(newProofVerifyCmd())
	return cmd
}

func newProofRefreshCmd() *cobra.Command {
	var (
		configPath string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "refresh [endpoint-id]",
		Short: "Sign a fresh proof of an endpoint's box chains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give an endpoint id or --all")
			}
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if err := n.requireSigner(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				s, err := proof.NewScheduler(n.issuer, n.cfg.Proofs.Schedule)
				if err != nil {
					return err
				}
				count, err := s.RefreshAll()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Refreshed %d proof(s)\n", count)
				return nil
			}

			p, err := n.issuer.Refresh(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Proof for %s signed by %s\n", p.EndpointID, p.SignerKeyID)
			fmt.Fprintf(out, "  inbox:  %d %s\n", p.InboxCount, p.InboxHash)
			fmt.Fprintf(out, "  outbox: %d %s\n", p.OutboxCount, p.OutboxHash)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&all, "all", false, "refresh every endpoint carrying traffic")
	return cmd
}

func newProofVerifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify <endpoint-id>",
		Short: "Check the stored proof against its signature and the box chains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			check, err := proof.Verify(n.db, n.chain, n.ring, args[0])
			if err != nil {
				return err
			}
			p := check.Proof
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Proof for %s is valid (signed by %s at %s)\n",
				p.EndpointID, p.SignerKeyID, p.IssuedAt.UTC().Format("2006-01-02 15:04:05"))
			if !check.Current {
				fmt.Fprintln(out, "Messages were accepted after it was issued; run 'pmx proof refresh'.")
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
