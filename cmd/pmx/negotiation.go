package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/consensus"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/ratify"
)

func newNegotiationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "negotiation",
		Aliases: []string{"neg"},
		Short:   "Open, sign and resolve negotiations",
	}

	cmd.AddCommand(newNegOpenCmd())
	cmd.AddCommand(newNegSignCmd())
	cmd.AddCommand(newNegSubmitCmd())
	cmd.AddCommand(newNegResolveCmd())
	cmd.AddCommand(newNegAbortCmd())
	cmd.AddCommand(newNegShowCmd())
	cmd.AddCommand(newNegProposeCmd())
	return cmd
}

func newNegOpenCmd() *cobra.Command {
	var (
		configPath string
		id         string
		text       string
		signers    []string
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a negotiation with its required signers",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			neg, err := n.ledger.Open(id, text, signers)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened negotiation %s (signers: %s)\n", neg.ID, strings.Join(signers, ", "))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&id, "id", "", "negotiation id (default: random UUID)")
	cmd.Flags().StringVar(&text, "text", "", "initial proposal text")
	cmd.Flags().StringSliceVar(&signers, "signer", nil, "required signer key id (repeatable)")
	return cmd
}

func newNegSignCmd() *cobra.Command {
	var (
		configPath string
		text       string
	)

	cmd := &cobra.Command{
		Use:   "sign <negotiation-id>",
		Short: "Sign text with the local key, submit it and try to resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if err := n.requireSigner(); err != nil {
				return err
			}
			sig, err := n.signer.Sign([]byte(text))
			if err != nil {
				return err
			}
			return submitAndResolve(cmd, n, args[0], n.signer.KeyID(), text, sig)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&text, "text", "", "text to sign")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newNegSubmitCmd() *cobra.Command {
	var (
		configPath string
		signer     string
		text       string
		signature  string
	)

	cmd := &cobra.Command{
		Use:   "submit <negotiation-id>",
		Short: "Submit a contribution signed elsewhere and try to resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			return submitAndResolve(cmd, n, args[0], signer, text, signature)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&signer, "signer", "", "signer key id")
	cmd.Flags().StringVar(&text, "text", "", "signed text")
	cmd.Flags().StringVar(&signature, "signature", "", "base64 signature over the text")
	cmd.MarkFlagRequired("signer")
	cmd.MarkFlagRequired("signature")
	return cmd
}

func submitAndResolve(cmd *cobra.Command, n *node, negotiationID, signer, text, sig string) error {
	id, err := n.ledger.Submit(negotiationID, signer, text, sig)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded contribution %d from %s\n", id, signer)
	return resolve(cmd, n, negotiationID)
}

func resolve(cmd *cobra.Command, n *node, negotiationID string) error {
	res, err := n.resolver.TryResolve(negotiationID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch res.State {
	case consensus.StateAgreed:
		fmt.Fprintf(out, "Consensus %s\n", res.Record.ID)
	case consensus.StatePending:
		if len(res.Missing) > 0 {
			fmt.Fprintf(out, "Pending: waiting for %s\n", strings.Join(res.Missing, ", "))
		} else {
			fmt.Fprintln(out, "Pending")
		}
	case consensus.StateDiverged:
		fmt.Fprintf(out, "Diverged: %d different texts\n", len(res.Groups))
	case consensus.StateAborted:
		fmt.Fprintln(out, "Aborted")
	}
	return nil
}

func newNegResolveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resolve <negotiation-id>",
		Short: "Check whether a negotiation has reached consensus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			return resolve(cmd, n, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newNegAbortCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "abort <negotiation-id>",
		Short: "Close a negotiation without consensus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if err := n.ledger.Abort(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %s aborted\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newNegShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <negotiation-id>",
		Short: "Show a negotiation, its latest contributions and consensus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			neg, err := ledger.Get(gormDB, args[0])
			if err != nil {
				return err
			}
			signers, err := ledger.RequiredSigners(gormDB, neg.ID)
			if err != nil {
				return err
			}
			latest, err := ledger.LatestContributions(gormDB, neg.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Negotiation: %s\n", neg.ID)
			fmt.Fprintf(out, "Status:      %s\n", neg.Status)
			fmt.Fprintf(out, "Signers:     %s\n", strings.Join(signers, ", "))
			if neg.Consensus != nil {
				fmt.Fprintf(out, "Consensus:   %s\n", *neg.Consensus)
				fmt.Fprintf(out, "Text:        %s\n", neg.Text)
			}
			if len(latest) > 0 {
				fmt.Fprintln(out, "Latest contributions:")
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, c := range latest {
					fmt.Fprintf(w, "  %s\t%s\n", c.SignerKeyID, truncate(c.Text, 60))
				}
				w.Flush()
			}

			rec, err := consensus.Stored(gormDB, neg.ID)
			if errors.Is(err, consensus.ErrNoConsensus) {
				return nil
			}
			if err != nil {
				return err
			}
			names := make([]string, 0, len(rec.Signings))
			for s := range rec.Signings {
				names = append(names, s)
			}
			sort.Strings(names)
			fmt.Fprintf(out, "Signed by:   %s at %s\n", strings.Join(names, ", "), rec.Timestamp.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newNegProposeCmd() *cobra.Command {
	var (
		configPath string
		peerID     string
		endpointID string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a peer or endpoint status change to its owners",
		Long: `Opens a negotiation whose text is the status change. Once every owner
signs it, the change is applied and recorded in the status log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := ratify.Transition{Status: strings.ToUpper(status)}
			switch {
			case peerID != "" && endpointID == "":
				t.Action, t.SubjectID = ratify.ActionPeerStatus, peerID
			case endpointID != "" && peerID == "":
				t.Action, t.SubjectID = ratify.ActionEndpointStatus, endpointID
			default:
				return fmt.Errorf("exactly one of --peer or --endpoint is required")
			}

			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			neg, err := ratify.ProposeStatus(n.db, n.ledger, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened negotiation %s\nText: %s\n", neg.ID, neg.Text)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&peerID, "peer", "", "peer whose status changes")
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "endpoint whose status changes")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.MarkFlagRequired("status")
	return cmd
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
