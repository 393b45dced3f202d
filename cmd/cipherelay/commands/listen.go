package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"cipherelay/internal/domain"
	"cipherelay/internal/relay"
)

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print incoming messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile()
			if err != nil {
				return err
			}
			keys := loadKeysQuietly()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := relay.DialWebSocket(ctx, clientCfg.ServerURL, p.Token)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.AwaitAuth()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listening as %s, Ctrl-C to stop.\n", id)
			return printUntilDone(ctx, s, keys, out)
		},
	}
}

// loadKeysQuietly returns the local identity, or nil when none can be
// opened. Sealed messages are then shown as unreadable.
func loadKeysQuietly() *domain.IdentityKeys {
	keys, err := appCtx.Identity.LoadIdentity(passphrase)
	if err != nil {
		return nil
	}
	return &keys
}

// printUntilDone prints envelopes from s until ctx ends or the server
// closes the stream.
func printUntilDone(ctx context.Context, s *relay.Stream, keys *domain.IdentityKeys, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	for {
		env, err := s.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fmt.Fprintln(out, formatEnvelope(keys, env))
	}
}
