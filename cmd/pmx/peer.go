package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"github.com/zulandar/panoramix/internal/statuslog"
)

func newPeerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Peer registration and status history",
	}

	cmd.AddCommand(newPeerRegisterCmd())
	cmd.AddCommand(newPeerListCmd())
	cmd.AddCommand(newPeerShowCmd())
	cmd.AddCommand(newPeerOwnerCmd())
	return cmd
}

func newPeerRegisterCmd() *cobra.Command {
	var (
		configPath string
		opts       peer.RegisterOpts
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a peer by its public key",
		Long: `Registers a peer in PENDING status. The peer id defaults to a fingerprint
of the key. The peer becomes READY once its owners ratify it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			p, err := peer.Register(gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered peer %s (%s, %s)\n", p.PeerID, p.CryptoBackend, p.Status)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.PeerID, "id", "", "peer id (default: key fingerprint)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.KeyData, "key", "", "public key as <backend>:<base64>")
	cmd.Flags().StringSliceVar(&opts.Owners, "owner", nil, "owner key id (repeatable)")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newPeerListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			peers, err := peer.List(gormDB, models.PeerStatus(strings.ToUpper(status)))
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No peers found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBACKEND\tSTATUS")
			for _, p := range peers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.PeerID, p.Name, p.CryptoBackend, p.Status)
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func newPeerShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <peer-id>",
		Short: "Show a peer, its owners and status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			p, err := peer.Get(gormDB, args[0])
			if err != nil {
				return err
			}
			owners, err := peer.ListOwners(gormDB, p.PeerID)
			if err != nil {
				return err
			}
			history, err := statuslog.History(gormDB, statuslog.SubjectPeer, p.PeerID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Peer:    %s\n", p.PeerID)
			fmt.Fprintf(out, "Name:    %s\n", p.Name)
			fmt.Fprintf(out, "Backend: %s\n", p.CryptoBackend)
			fmt.Fprintf(out, "Status:  %s\n", p.Status)
			fmt.Fprintf(out, "Owners:  %s\n", strings.Join(owners, ", "))
			printHistory(cmd, history)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newPeerOwnerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "owner-add <peer-id> <owner-key-id>",
		Short: "Authorize a key to act for a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := peer.AddOwner(gormDB, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Owner %s added to %s\n", args[1], args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func printHistory(cmd *cobra.Command, history []statuslog.Entry) {
	out := cmd.OutOrStdout()
	if len(history) == 0 {
		fmt.Fprintln(out, "History: none")
		return
	}
	fmt.Fprintln(out, "History:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range history {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", e.ID, e.Status, e.ConsensusID, e.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
