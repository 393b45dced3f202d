package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cipherelay/internal/domain"
	"cipherelay/internal/relay"
)

func sendCmd() *cobra.Command {
	var (
		all  bool
		seal bool
	)
	cmd := &cobra.Command{
		Use:   "send [peer] <message>",
		Short: "Relay a message to a peer, or to everyone with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.MinimumNArgs(1)(cmd, args)
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && seal {
				return errors.New("--seal needs a single recipient")
			}
			p, err := profile()
			if err != nil {
				return err
			}

			frame := domain.InboundFrame{Payload: strings.Join(args, " ")}
			if !all {
				frame = domain.InboundFrame{
					Addressed: true,
					Recipient: domain.Identity(args[0]),
					Payload:   strings.Join(args[1:], " "),
				}
			}
			if seal {
				key, err := appCtx.API.PublicKey(cmd.Context(), frame.Recipient.String())
				if err != nil {
					return err
				}
				if frame.Payload, err = sealPayload(key, frame.Payload); err != nil {
					return err
				}
			}

			s, err := relay.DialWebSocket(cmd.Context(), clientCfg.ServerURL, p.Token)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.AwaitAuth(); err != nil {
				return err
			}
			ack, err := s.SendAndWait(frame, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case ack.Broadcast:
				fmt.Fprintf(out, "sent %s to %d user(s)\n", ack.MessageID, ack.DeliveredCount)
			case ack.Delivered:
				fmt.Fprintf(out, "delivered %s to %s\n", ack.MessageID, frame.Recipient)
			default:
				fmt.Fprintf(out, "%s is offline, %s was not delivered\n", frame.Recipient, ack.MessageID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "broadcast to every connected user")
	cmd.Flags().BoolVar(&seal, "seal", false, "seal the message to the peer's published key")
	return cmd
}
