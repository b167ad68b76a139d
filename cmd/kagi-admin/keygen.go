package main

import (
	"fmt"

	"github.com/kiranshivaraju/kagi/internal/encryption"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new master encryption key",
		Long: `Generates a random 256-bit master key as 64 hex characters.

Changing the key of a deployment makes every stored secret unreadable.

Examples:
  # Print an assignment ready for an env file
  kagi-admin keygen

  # Print the bare key
  kagi-admin keygen --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := encryption.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, key)
				return nil
			}
			fmt.Fprintf(out, "%s=%s\n", encryption.KeyEnvVar, key)
			fmt.Fprintln(cmd.ErrOrStderr(), warning.Sprint("Store this key safely; secrets cannot be recovered without it."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print only the key")
	return cmd
}
