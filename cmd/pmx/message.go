package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/models"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Send, list and forward box messages",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageListCmd())
	cmd.AddCommand(newMessageForwardCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		configPath string
		box        string
		in         boxchain.Incoming
	)

	cmd := &cobra.Command{
		Use:   "send <endpoint-id>",
		Short: "Append a message to an endpoint box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseBox(box)
			if err != nil {
				return err
			}
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			if in.Sender == "" {
				in.Sender = n.cfg.PeerID
			}
			if in.Recipient == "" {
				in.Recipient = args[0]
			}
			serial, err := n.chain.Accept(args[0], b, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s/%s serial %d\n", args[0], b, serial)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&box, "box", "inbox", "target box (inbox, outbox)")
	cmd.Flags().StringVar(&in.Sender, "from", "", "sender (default: peer_id from config)")
	cmd.Flags().StringVar(&in.Recipient, "to", "", "recipient (default: the endpoint)")
	cmd.Flags().StringVar(&in.Text, "text", "", "message text")
	cmd.Flags().Int64Var(&in.ExpectedSerial, "serial", 0, "expected serial (0 = any)")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	var (
		configPath string
		box        string
	)

	cmd := &cobra.Command{
		Use:   "list <endpoint-id>",
		Short: "List a box in serial order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseBox(box)
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			msgs, err := boxchain.Messages(gormDB, args[0], b)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tID\tFROM\tTO\tHASH\tTEXT")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					serialString(m), m.ID, m.Sender, m.Recipient, truncate(m.MessageHash, 16), truncate(m.Text, 40))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&box, "box", "inbox", "box to list (inbox, outbox)")
	return cmd
}

func serialString(m models.Message) string {
	if m.Serial == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *m.Serial)
}

func newMessageForwardCmd() *cobra.Command {
	var (
		configPath string
		box        string
		messageID  uint
	)

	cmd := &cobra.Command{
		Use:   "forward <endpoint-id>",
		Short: "Copy a message into every box linked downstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseBox(box)
			if err != nil {
				return err
			}
			n, err := openNode(configPath)
			if err != nil {
				return err
			}
			deliveries, err := n.chain.Forward(args[0], b, messageID)
			out := cmd.OutOrStdout()
			for _, d := range deliveries {
				if d.Err != nil {
					fmt.Fprintf(out, "  %s/%s: %v\n", d.EndpointID, d.Box, d.Err)
					continue
				}
				fmt.Fprintf(out, "  %s/%s: serial %d\n", d.EndpointID, d.Box, d.Serial)
			}
			if len(deliveries) == 0 && err == nil {
				fmt.Fprintln(out, "No downstream links.")
			}
			return err
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&box, "box", "outbox", "source box (inbox, outbox)")
	cmd.Flags().UintVar(&messageID, "id", 0, "message id to forward")
	cmd.MarkFlagRequired("id")
	return cmd
}
