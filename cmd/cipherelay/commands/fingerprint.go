package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherelay/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if peer != "" {
				if _, err := profile(); err != nil {
					return err
				}
				key, err := appCtx.API.PublicKey(cmd.Context(), peer)
				if err != nil {
					return err
				}
				pub, err := crypto.ParsePublicKey(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", peer, crypto.Fingerprint(pub.Slice()))
				return nil
			}

			if passphrase == "" {
				return errNoPassphrase
			}
			fp, err := appCtx.Identity.FingerprintIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "print the fingerprint of a peer's published key instead")
	return cmd
}
