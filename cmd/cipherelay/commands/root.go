package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cipherelay/internal/app"
	"cipherelay/internal/domain"
)

var (
	clientCfg  = app.DefaultClientConfig()
	passphrase string
	username   string
	appCtx     *app.Client
)

// Execute runs the CLI with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cipherelay",
		Short:        "Real-time message relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "serve" {
				return nil
			}
			if err := os.MkdirAll(clientCfg.Home, 0o700); err != nil {
				return err
			}
			c, err := app.NewClient(clientCfg)
			if err != nil {
				return err
			}
			appCtx = c
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&clientCfg.Home, "home", clientCfg.Home, "client state directory")
	pf.StringVarP(&passphrase, "passphrase", "p", os.Getenv(app.EnvPrefix+"PASSPHRASE"), "passphrase protecting local keys and tokens")
	pf.StringVar(&clientCfg.ServerURL, "server", clientCfg.ServerURL, "relay HTTP base URL")
	pf.StringVar(&clientCfg.TCPAddr, "tcp", clientCfg.TCPAddr, "relay line-protocol address")
	pf.StringVarP(&username, "username", "u", os.Getenv(app.EnvPrefix+"USERNAME"), "account username")

	root.AddCommand(
		serveCmd(),
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		loginCmd(),
		sendCmd(),
		listenCmd(),
		chatCmd(),
		usersCmd(),
		onlineCmd(),
		keysCmd(),
		historyCmd(),
	)
	return root
}

var (
	errNoPassphrase = errors.New("passphrase required (-p)")
	errNoUsername   = errors.New("username required (-u)")
	errNoProfile    = errors.New("no stored token for this account, run register or login first")
)

// profile loads the stored token for --username on --server and points the
// API client at it.
func profile() (domain.AccountProfile, error) {
	if passphrase == "" {
		return domain.AccountProfile{}, errNoPassphrase
	}
	if username == "" {
		return domain.AccountProfile{}, errNoUsername
	}
	p, ok, err := appCtx.Profiles.LoadAccountProfile(passphrase, clientCfg.ServerURL, domain.Identity(username))
	if err != nil {
		return domain.AccountProfile{}, err
	}
	if !ok {
		return domain.AccountProfile{}, fmt.Errorf("%s@%s: %w", username, clientCfg.ServerURL, errNoProfile)
	}
	appCtx.API.Token = p.Token
	return p, nil
}
