package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/statuslog"
)

func newEndpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"ep"},
		Short:   "Endpoint management commands",
	}

	cmd.AddCommand(newEndpointCreateCmd())
	cmd.AddCommand(newEndpointListCmd())
	cmd.AddCommand(newEndpointShowCmd())
	cmd.AddCommand(newEndpointLinkCmd())
	cmd.AddCommand(newEndpointStatsCmd())
	cmd.AddCommand(newEndpointVerifyCmd())
	return cmd
}

func newEndpointCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       endpoint.CreateOpts
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending endpoint owned by a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if opts.PeerID == "" {
				opts.PeerID = n.cfg.PeerID
			}
			ep, err := endpoint.Create(n.db, n.registry, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created endpoint %s (type %s, peer %s, status %s)\n",
				ep.EndpointID, ep.EndpointType, ep.PeerID, ep.Status)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.EndpointID, "id", "", "endpoint id (default: random UUID)")
	cmd.Flags().StringVar(&opts.PeerID, "peer", "", "owning peer (default: peer_id from config)")
	cmd.Flags().StringVar(&opts.EndpointType, "type", "mailbox", "endpoint type")
	cmd.Flags().StringVar(&opts.Description, "desc", "", "description")
	cmd.Flags().BoolVar(&opts.Public, "public", false, "list the endpoint publicly")
	cmd.Flags().IntVar(&opts.SizeMin, "size-min", 0, "messages required before processing")
	cmd.Flags().IntVar(&opts.SizeMax, "size-max", 0, "maximum messages per box (0 = unbounded)")
	cmd.Flags().StringVar(&opts.EndpointParams, "params", "", "type-specific parameters")
	return cmd
}

func newEndpointListCmd() *cobra.Command {
	var (
		configPath string
		peerID     string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			eps, err := endpoint.List(gormDB, endpoint.ListFilters{
				PeerID: peerID,
				Status: models.EndpointStatus(strings.ToUpper(status)),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(eps) == 0 {
				fmt.Fprintln(out, "No endpoints found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tPEER\tTYPE\tSTATUS\tSIZE\tPUBLIC")
			for _, ep := range eps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
					ep.EndpointID, ep.PeerID, ep.EndpointType, ep.Status, sizeRange(ep.SizeMin, ep.SizeMax), ep.Public)
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&peerID, "peer", "", "filter by owning peer")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func sizeRange(lo, hi int) string {
	if hi == 0 {
		return fmt.Sprintf("%d..", lo)
	}
	return fmt.Sprintf("%d..%d", lo, hi)
}

func newEndpointShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <endpoint-id>",
		Short: "Show an endpoint, its links and status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			ep, err := endpoint.Get(gormDB, args[0])
			if err != nil {
				return err
			}
			links, err := endpoint.Links(gormDB, ep.EndpointID)
			if err != nil {
				return err
			}
			history, err := statuslog.History(gormDB, statuslog.SubjectEndpoint, ep.EndpointID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Endpoint:    %s\n", ep.EndpointID)
			fmt.Fprintf(out, "Peer:        %s\n", ep.PeerID)
			fmt.Fprintf(out, "Type:        %s\n", ep.EndpointType)
			fmt.Fprintf(out, "Status:      %s\n", ep.Status)
			fmt.Fprintf(out, "Size:        %s\n", sizeRange(ep.SizeMin, ep.SizeMax))
			if ep.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", ep.Description)
			}
			fmt.Fprintf(out, "Inbox hash:  %s\n", ep.InboxHash)
			fmt.Fprintf(out, "Outbox hash: %s\n", ep.OutboxHash)
			for _, l := range links {
				fmt.Fprintf(out, "Fed by:      %s/%s -> %s\n", l.FromEndpointID, l.FromBox, l.ToBox)
			}
			printHistory(cmd, history)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newEndpointLinkCmd() *cobra.Command {
	var (
		configPath string
		from       string
		to         string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Feed one endpoint box into another",
		Example: `  pmx endpoint link --from mix-1/outbox --to mix-2/inbox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromEP, fromBox, err := parseBoxRef(from)
			if err != nil {
				return err
			}
			toEP, toBox, err := parseBoxRef(to)
			if err != nil {
				return err
			}
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if _, err := endpoint.Link(n.db, n.registry, fromEP, fromBox, toEP, toBox); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s/%s -> %s/%s\n", fromEP, fromBox, toEP, toBox)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&from, "from", "", "source <endpoint>/<box>")
	cmd.Flags().StringVar(&to, "to", "", "target <endpoint>/<box>")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newEndpointStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats <endpoint-id>",
		Short: "Show box counters and readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			st, err := n.chain.Stats(args[0])
			if err != nil {
				return err
			}
			ready, err := n.chain.ReadyForProcessing(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Endpoint: %s (%s)\n", st.EndpointID, st.Status)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BOX\tCOUNT\tHASH")
			for _, box := range models.Boxes() {
				b := st.Boxes[box]
				fmt.Fprintf(w, "%s\t%d\t%s\n", box, b.Count, b.Hash)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Ready for processing: %t\n", ready)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newEndpointVerifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify <endpoint-id>",
		Short: "Replay both box chains and compare with the stored hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var errs []error
			for _, box := range models.Boxes() {
				rep, err := n.chain.Verify(args[0], box)
				if rep == nil {
					return err
				}
				if err != nil {
					fmt.Fprintf(out, "%s: BROKEN (%d messages): %v\n", box, rep.Count, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok (%d messages, %s)\n", box, rep.Count, rep.Stored)
			}
			return errors.Join(errs...)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
