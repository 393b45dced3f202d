package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cipherelay/internal/domain"
)

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := profile(); err != nil {
				return err
			}
			users, err := appCtx.API.Users(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tREGISTERED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\n", u.Username, u.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func onlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List connected users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := profile(); err != nil {
				return err
			}
			online, err := appCtx.API.Online(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%d online\n", online.Count)
			fmt.Fprintln(w, "USER\tTRANSPORT\tSINCE")
			for _, p := range online.Users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Identity, p.Transport, p.RegisteredAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <username>",
		Short: "Print a user's published public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := profile(); err != nil {
				return err
			}
			key, err := appCtx.API.PublicKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent messages you sent, received or saw broadcast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := profile(); err != nil {
				return err
			}
			msgs, err := appCtx.API.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			keys := loadKeysQuietly()
			out := cmd.OutOrStdout()
			// Oldest first, like a chat log.
			for i := len(msgs) - 1; i >= 0; i-- {
				m := msgs[i]
				fmt.Fprintln(out, formatEnvelope(keys, domain.Envelope{
					Type:      domain.EnvelopeMessage,
					From:      m.From,
					To:        m.To,
					MessageID: m.ID,
					Payload:   m.Ciphertext,
					Timestamp: m.CreatedAt,
				}))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of messages (server default when 0)")
	return cmd
}
