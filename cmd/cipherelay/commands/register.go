package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cipherelay/internal/domain"
	"cipherelay/internal/relay"
	"cipherelay/internal/services/identity"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account on the relay and store its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errNoPassphrase
			}
			keys, err := appCtx.Identity.LoadIdentity(passphrase)
			if err != nil {
				return fmt.Errorf("loading identity (run init first): %w", err)
			}
			password, err := readPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}

			res, err := appCtx.API.Register(cmd.Context(), args[0], password, identity.PublicKey(keys))
			if err != nil {
				return err
			}
			if err := saveProfile(res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s on %s\n", res.Username, clientCfg.ServerURL)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store a fresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errNoPassphrase
			}
			password, err := readPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			res, err := appCtx.API.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if err := saveProfile(res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s, token expires %s\n",
				res.Username, res.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func saveProfile(res relay.AuthResult) error {
	return appCtx.Profiles.SaveAccountProfile(passphrase, domain.AccountProfile{
		ServerURL: clientCfg.ServerURL,
		Username:  domain.Identity(res.Username),
		UserID:    res.UserID,
		Token:     res.AccessToken,
		IssuedAt:  time.Now().UTC(),
	})
}
