package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
	"cipherelay/internal/services/router"
)

const (
	// DefaultHandshakeTimeout bounds the time from accept to auth_success.
	DefaultHandshakeTimeout = 30 * time.Second

	reasonUnknownMode   = "Unknown mode."
	reasonBadCredFormat = "Invalid credential format."
	reasonInternal      = "internal error"
	reasonNoTokens      = "Token authentication is not available"
	reasonBadFrame      = "Invalid message format. Required: to_user_id, ciphertext"
	reasonBadCommand    = "Invalid command. Usage: /to <user> <message>"
	reasonNoBroadcast   = "Broadcast is disabled on this relay. Address a recipient."
	reasonTooLarge      = "Message too large."
)

var (
	// ErrAuthFailed is returned by Run when the handshake was rejected.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrPanic is returned by Run when the session recovered from a panic.
	ErrPanic = errors.New("session panicked")
)

// Registry is the part of the connection registry a session needs.
type Registry interface {
	Register(id domain.Identity, conn domain.Conn) domain.Conn
	Release(id domain.Identity, conn domain.Conn) bool
}

// Router routes one frame on behalf of sender.
type Router interface {
	Route(ctx context.Context, sender domain.Identity, frame domain.InboundFrame) (domain.DeliveryResult, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Gate     domain.CredentialGate
	Tokens   domain.TokenVerifier
	Registry Registry
	Router   Router
	Log      zerolog.Logger

	// HandshakeTimeout closes connections that do not authenticate in time.
	// Zero means DefaultHandshakeTimeout; negative disables the limit.
	HandshakeTimeout time.Duration
}

// Session is the server side of one connection.
type Session struct {
	conn  domain.Conn
	token string
	deps  Deps
	log   zerolog.Logger

	state    atomic.Int32
	mu       sync.Mutex
	identity domain.Identity
}

// New returns a session for conn. A non-empty token selects bearer
// authentication; otherwise the interactive handshake runs.
func New(conn domain.Conn, token string, deps Deps) *Session {
	if deps.HandshakeTimeout == 0 {
		deps.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{
		conn:  conn,
		token: token,
		deps:  deps,
		log: deps.Log.With().
			Str("component", "session").
			Str("conn_id", conn.ID()).
			Str("remote", conn.RemoteAddr()).
			Str("transport", conn.Transport()).
			Logger(),
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Identity returns the authenticated identity, or "" before Relaying.
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) transition(to State) error {
	from := s.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.state.Store(int32(to))
	return nil
}

// Run serves the connection until it ends. Cleanup always runs: the
// registry entry (if any) is released and the handle is closed, even when a
// panic is recovered. A nil error means the peer or the parent context
// ended the session normally.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("session panicked")
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		cancel()
		s.close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-s.conn.Done():
		}
	}()

	if err := s.transition(StateAuthenticating); err != nil {
		return err
	}
	id, mode, err := s.authenticate(ctx)
	if err != nil {
		return err
	}
	if err := s.transition(StateRelaying); err != nil {
		return err
	}
	if err := s.conn.Send(domain.Envelope{
		Type:      domain.EnvelopeAuthSuccess,
		Identity:  id,
		Mode:      mode,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("send auth_success: %w", err)
	}

	// A handshake timeout or shutdown may have closed the handle after
	// auth_success was queued; registering it would evict a live session.
	select {
	case <-s.conn.Done():
		return nil
	default:
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	s.log = s.log.With().Str("identity", id.String()).Logger()
	if evicted := s.deps.Registry.Register(id, s.conn); evicted != nil {
		s.log.Info().Str("evicted_conn_id", evicted.ID()).Msg("replaced previous session")
	}
	s.log.Info().Str("mode", mode.String()).Msg("session authenticated")

	return s.relay(ctx)
}

func (s *Session) close() {
	if s.State() == StateClosed {
		return
	}
	s.state.Store(int32(StateClosed))
	if id := s.Identity(); id != "" {
		s.deps.Registry.Release(id, s.conn)
	}
	_ = s.conn.Close()
	s.log.Info().Msg("session closed")
}

// authenticate runs the bearer or interactive handshake.
func (s *Session) authenticate(ctx context.Context) (domain.Identity, domain.AuthMode, error) {
	if s.deps.HandshakeTimeout > 0 {
		log := s.log
		timer := time.AfterFunc(s.deps.HandshakeTimeout, func() {
			log.Warn().Msg("handshake timed out")
			_ = s.conn.Close()
		})
		defer timer.Stop()
	}

	if s.token != "" {
		if s.deps.Tokens == nil {
			return "", domain.AuthModeToken, s.reject(domain.AuthModeToken, domain.Reject(reasonNoTokens))
		}
		id, err := s.deps.Tokens.VerifyToken(ctx, s.token)
		if err != nil {
			return "", domain.AuthModeToken, s.reject(domain.AuthModeToken, err)
		}
		return id, domain.AuthModeToken, nil
	}

	codec := s.conn.Codec()
	if err := s.conn.Send(domain.Envelope{Type: domain.EnvelopeAuthMode}); err != nil {
		return "", "", fmt.Errorf("send auth_mode: %w", err)
	}
	raw, err := s.conn.Receive()
	if errors.Is(err, domain.ErrFrameTooLarge) {
		return "", "", s.reject(domain.AuthModeLogin, domain.Rejectf(err, reasonUnknownMode))
	}
	if err != nil {
		return "", "", fmt.Errorf("read auth mode: %w", err)
	}
	mode, err := codec.DecodeMode(raw)
	if err != nil {
		return "", "", s.reject(domain.AuthModeLogin, domain.Rejectf(err, reasonUnknownMode))
	}

	if err := s.conn.Send(domain.Envelope{Type: domain.EnvelopeSendCredentials, Mode: mode}); err != nil {
		return "", mode, fmt.Errorf("send send_credentials: %w", err)
	}
	raw, err = s.conn.Receive()
	if errors.Is(err, domain.ErrFrameTooLarge) {
		return "", mode, s.reject(mode, domain.Rejectf(err, reasonBadCredFormat))
	}
	if err != nil {
		return "", mode, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := codec.DecodeCredentials(raw)
	if err != nil {
		return "", mode, s.reject(mode, domain.Rejectf(err, reasonBadCredFormat))
	}

	id, err := s.deps.Gate.VerifyCredentials(ctx, mode, creds.Username, creds.Password)
	if err != nil {
		return "", mode, s.reject(mode, err)
	}
	return id, mode, nil
}

// reject tells the peer why the handshake failed. Errors that carry no
// peer-visible reason are logged and reported as an internal error.
func (s *Session) reject(mode domain.AuthMode, cause error) error {
	reason, ok := domain.RejectionReason(cause)
	if !ok {
		s.log.Error().Err(cause).Msg("handshake failed")
		reason = reasonInternal
	} else {
		s.log.Info().Str("reason", reason).Msg("handshake rejected")
	}
	_ = s.conn.Send(domain.Envelope{
		Type:      domain.EnvelopeAuthFail,
		Mode:      mode,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return fmt.Errorf("%w: %w", ErrAuthFailed, cause)
}

// relay reads frames until the connection ends. Every decoded frame gets
// exactly one reply: an ack when routed, an error envelope otherwise.
func (s *Session) relay(ctx context.Context) error {
	codec := s.conn.Codec()
	for {
		raw, err := s.conn.Receive()
		if errors.Is(err, domain.ErrFrameTooLarge) {
			s.log.Debug().Msg("dropped oversized frame")
			if err := s.reply(domain.ErrorEnvelope(reasonTooLarge)); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return s.endOfStream(ctx, err)
		}

		frame, err := codec.DecodeFrame(raw)
		if errors.Is(err, domain.ErrCloseRequested) {
			s.log.Debug().Msg("peer requested close")
			return nil
		}
		if err != nil {
			if err := s.reply(domain.ErrorEnvelope(s.frameReason(err))); err != nil {
				return err
			}
			continue
		}

		res, err := s.deps.Router.Route(ctx, s.Identity(), frame)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := s.reply(domain.ErrorEnvelope(s.frameReason(err))); err != nil {
				return err
			}
			continue
		}
		if err := s.reply(res.Ack()); err != nil {
			return err
		}
	}
}

// reply sends env to the peer. Failures that mean the peer is gone or not
// reading end the session.
func (s *Session) reply(env domain.Envelope) error {
	err := s.conn.Send(env)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConnClosed) || errors.Is(err, domain.ErrSlowConsumer) {
		return fmt.Errorf("reply %s: %w", env.Type, err)
	}
	s.log.Warn().Err(err).Str("type", string(env.Type)).Msg("reply not encodable")
	return nil
}

// endOfStream classifies a read failure. A hang-up, a local close (eviction,
// shutdown) or context cancellation is a normal end.
func (s *Session) endOfStream(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, domain.ErrConnClosed) ||
		errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	select {
	case <-s.conn.Done():
		return nil
	default:
	}
	return fmt.Errorf("receive: %w", err)
}

func (s *Session) frameReason(err error) string {
	switch {
	case errors.Is(err, router.ErrBroadcastDisabled):
		return reasonNoBroadcast
	case s.conn.Codec().Name() == "line":
		return reasonBadCommand
	default:
		return reasonBadFrame
	}
}
