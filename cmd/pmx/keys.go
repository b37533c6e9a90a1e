package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/keys"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Signing key commands",
	}

	cmd.AddCommand(newKeysGenerateCmd())
	cmd.AddCommand(newKeysShowCmd())
	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var (
		out     string
		backend string
		keyID   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a private key file and print its public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := keys.ParseBackend(backend)
			if err != nil {
				return err
			}
			s, err := keys.WriteKeyFile(out, keyID, b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s key to %s\n", b, out)
			fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", s.PublicKey())
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "panoramix.key", "private key file to write")
	cmd.Flags().StringVarP(&backend, "backend", "b", string(keys.Ed25519), "signature backend (ed25519, dilithium3)")
	cmd.Flags().StringVar(&keyID, "id", "", "key id")
	return cmd
}

func newKeysShowCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the public key of a private key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := keys.LoadSigner(file, "")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.PublicKey())
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "panoramix.key", "private key file")
	return cmd
}
