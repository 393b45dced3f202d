package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cipherelay/internal/domain"
	"cipherelay/internal/registry"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/services/history"
	"cipherelay/internal/services/session"
	"cipherelay/internal/transport"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	acceptBackoffMax       = time.Second
)

// Config holds listener settings.
type Config struct {
	HTTPAddr string
	TCPAddr  string
	// Conn tunes every accepted connection. Its Logger is set by New.
	Conn            transport.Options
	ShutdownTimeout time.Duration
}

// Deps are the services the edge dispatches to.
type Deps struct {
	Auth     *auth.Service
	Tokens   *auth.Tokens
	Registry *registry.Registry
	Sessions session.Deps
	// History is optional; when set its counters appear in /health.
	History *history.Recorder
	// Messages is optional; when set GET /api/v1/history serves it.
	Messages domain.MessageHistory
}

// Server accepts connections and serves the HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	log    zerolog.Logger
	router *httprouter.Router

	started  time.Time
	sessions sync.WaitGroup
}

// New builds a Server. Nothing listens until Run, ServeTCP or ServeAPI.
func New(cfg Config, deps Deps, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.Conn.Logger = log.With().Str("component", "transport").Logger()
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log.With().Str("component", "server").Logger(),
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP API, access-logged.
func (s *Server) Handler() http.Handler { return s.accessLog(s.router) }

// Run listens on both configured addresses and serves until ctx ends or a
// listener fails. It returns after every session has finished.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
	}
	tcpLn, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
	}
	s.log.Info().
		Str("http_addr", httpLn.Addr().String()).
		Str("tcp_addr", tcpLn.Addr().String()).
		Msg("relay listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ServeAPI(gctx, httpLn) })
	g.Go(func() error { return s.ServeTCP(gctx, tcpLn) })
	err = g.Wait()

	s.sessions.Wait()
	s.log.Info().Msg("relay stopped")
	return err
}

// ServeAPI serves the HTTP API on ln until ctx ends. WebSocket sessions
// inherit ctx, so they end with it.
func (s *Server) ServeAPI(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown")
		}
	})
	defer stop()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// ServeTCP accepts line-protocol connections on ln until ctx ends.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0
		conn := transport.NewTCPConn(nc, s.cfg.Conn)
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.runSession(ctx, conn, "")
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > acceptBackoffMax {
		d = acceptBackoffMax
	}
	return d
}

func (s *Server) runSession(ctx context.Context, conn domain.Conn, token string) {
	err := session.New(conn, token, s.deps.Sessions).Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrAuthFailed):
		s.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("session rejected")
	default:
		s.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("session ended with error")
	}
}
