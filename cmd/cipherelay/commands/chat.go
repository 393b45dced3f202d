package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"cipherelay/internal/domain"
	"cipherelay/internal/relay"
	"cipherelay/internal/transport"
)

const chatHelp = `Type a line to send it to everyone online.
  /to <user> <message>  send to one user
  /exit                 leave`

func chatCmd() *cobra.Command {
	var signup bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat over the TCP line protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			mode := domain.AuthModeLogin
			if signup {
				mode = domain.AuthModeSignup
			}

			name := username
			if name == "" {
				var err error
				if name, err = readLine(out, "Username: "); err != nil {
					return err
				}
			}
			password, err := readPassword(out, "Password: ")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := relay.DialTCP(ctx, clientCfg.TCPAddr)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.Handshake(mode, domain.Credentials{Username: name, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Connected as %s.\n%s\n", id, chatHelp)

			keys := loadKeysQuietly()
			recvDone := make(chan error, 1)
			go func() { recvDone <- printUntilDone(ctx, s, keys, out) }()

			lines := make(chan string)
			go func() {
				defer close(lines)
				for {
					line, err := stdin.ReadString('\n')
					if line = strings.TrimRight(line, "\r\n"); line != "" {
						select {
						case lines <- line:
						case <-ctx.Done():
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()

			return chatLoop(ctx, s, lines, recvDone, out)
		},
	}
	cmd.Flags().BoolVar(&signup, "signup", false, "create the account instead of logging in")
	return cmd
}

// chatLoop forwards typed lines to the relay until the user leaves, stdin
// ends or the server goes away.
func chatLoop(ctx context.Context, s *relay.Stream, lines <-chan string, recvDone <-chan error, out io.Writer) error {
	codec := transport.LineCodec{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvDone:
			if err == nil {
				fmt.Fprintln(out, "Disconnected.")
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			frame, err := codec.DecodeFrame([]byte(line))
			switch {
			case errors.Is(err, domain.ErrCloseRequested):
				return nil
			case err != nil:
				fmt.Fprintf(out, "error: %v\n%s\n", err, chatHelp)
				continue
			}
			if err := s.Send(frame); err != nil {
				return err
			}
		}
	}
}
