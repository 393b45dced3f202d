package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cipherelay/internal/app"
	"cipherelay/internal/logging"
)

func serveCmd() *cobra.Command {
	cfg := app.DefaultServerConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			srv, err := app.NewServer(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					log.Error().Err(err).Msg("closing store")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().
				Str("http_addr", cfg.HTTPAddr).
				Str("tcp_addr", cfg.TCPAddr).
				Bool("broadcast", cfg.Broadcast).
				Bool("persistent", cfg.DBPath != "").
				Msg("relay starting")
			return srv.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP API and WebSocket listen address")
	f.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "TCP line-protocol listen address")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path (empty keeps state in memory)")
	f.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "HS256 signing secret for access tokens")
	f.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "access token lifetime")
	f.BoolVar(&cfg.Broadcast, "broadcast", cfg.Broadcast, "fan out unaddressed frames to every connected user")
	f.IntVar(&cfg.OutboxSize, "outbox", cfg.OutboxSize, "per-connection outbound queue size")
	f.IntVar(&cfg.HistoryQueue, "history-queue", cfg.HistoryQueue, "pending history records before drops")
	f.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt cost for new passwords (0 uses the default)")
	f.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "time allowed to authenticate")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or console)")
	return cmd
}
