package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
	"cipherelay/internal/registry"
	"cipherelay/internal/relay"
	"cipherelay/internal/server"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/services/history"
	"cipherelay/internal/services/identity"
	"cipherelay/internal/services/router"
	"cipherelay/internal/services/session"
	"cipherelay/internal/store"
	"cipherelay/internal/transport"
)

// serverStore is what the relay persists: accounts and message history.
type serverStore interface {
	domain.AccountStore
	domain.MessageStore
	domain.MessageHistory
}

// Server bundles the relay's dependency graph.
type Server struct {
	Config   ServerConfig
	Registry *registry.Registry
	Auth     *auth.Service
	Tokens   *auth.Tokens
	History  *history.Recorder
	Router   *router.Service
	Edge     *server.Server

	log    zerolog.Logger
	closer func() error
}

// NewServer builds the relay from cfg.
func NewServer(cfg ServerConfig, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		st     serverStore
		closer = func() error { return nil }
	)
	if cfg.DBPath == "" {
		log.Warn().Msg("no database configured, accounts and history are kept in memory")
		st = store.NewMemoryStore()
	} else {
		db, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		st, closer = db, db.Close
	}

	secret := cfg.TokenSecret
	if secret == "" {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			_ = closer()
			return nil, err
		}
		secret = hex.EncodeToString(b[:])
		log.Warn().Msg("no token secret configured, tokens will not survive a restart")
	}

	authSvc, err := auth.New(st, cfg.BcryptCost, log)
	if err != nil {
		_ = closer()
		return nil, err
	}
	tokens, err := auth.NewTokens(secret, cfg.TokenTTL, st)
	if err != nil {
		_ = closer()
		return nil, err
	}

	reg := registry.New(log)
	rec := history.New(st, cfg.HistoryQueue, log)
	rt := router.New(reg, rec, router.Options{Broadcast: cfg.Broadcast}, log)
	edge := server.New(server.Config{
		HTTPAddr: cfg.HTTPAddr,
		TCPAddr:  cfg.TCPAddr,
		Conn:     transport.Options{QueueSize: cfg.OutboxSize},
	}, server.Deps{
		Auth:     authSvc,
		Tokens:   tokens,
		Registry: reg,
		History:  rec,
		Messages: st,
		Sessions: session.Deps{
			Gate:             authSvc,
			Tokens:           tokens,
			Registry:         reg,
			Router:           rt,
			Log:              log,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, log)

	return &Server{
		Config:   cfg,
		Registry: reg,
		Auth:     authSvc,
		Tokens:   tokens,
		History:  rec,
		Router:   rt,
		Edge:     edge,
		log:      log,
		closer:   closer,
	}, nil
}

// Run serves until ctx ends. History keeps draining until every session
// has finished, then flushes.
func (s *Server) Run(ctx context.Context) error {
	histCtx, stopHistory := context.WithCancel(context.Background())
	histDone := make(chan struct{})
	go func() {
		defer close(histDone)
		_ = s.History.Run(histCtx)
	}()

	err := s.Edge.Run(ctx)
	stopHistory()
	<-histDone

	stats := s.History.Stats()
	s.log.Info().
		Uint64("stored", stats.Stored).
		Uint64("failed", stats.Failed).
		Uint64("dropped", stats.Dropped).
		Msg("history flushed")
	return err
}

// Close releases the store.
func (s *Server) Close() error { return s.closer() }

// Client bundles the local stores and the API client used by CLI commands.
type Client struct {
	Config   ClientConfig
	Identity *identity.Service
	Profiles domain.ProfileStore
	API      *relay.HTTP
}

// NewClient builds the client-side graph from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Home == "" {
		return nil, fmt.Errorf("client home directory is required")
	}
	api := relay.NewHTTP(cfg.ServerURL)
	if cfg.HTTP != nil {
		api.HTTP = cfg.HTTP
	} else {
		api.HTTP = http.DefaultClient
	}
	return &Client{
		Config:   cfg,
		Identity: identity.New(store.NewIdentityFileStore(cfg.Home)),
		Profiles: store.NewProfileFileStore(cfg.Home),
		API:      api,
	}, nil
}
