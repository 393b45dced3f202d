package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cipherelay/internal/domain"
	"cipherelay/internal/transport"
)

const (
	streamWriteWait = 10 * time.Second
	// Delivered envelopes wrap a payload of up to the server's frame limit.
	maxLineSize = 4 * transport.DefaultMaxFrameSize
)

// ErrUnexpectedEnvelope is returned when the server breaks the handshake order.
var ErrUnexpectedEnvelope = errors.New("unexpected envelope from server")

// Stream is one client-side relay session.
type Stream struct {
	codec domain.Codec
	read  func() ([]byte, error)
	write func([]byte) error
	close func() error

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to the server's /ws endpoint at base (an http or
// https URL). With a token the server authenticates from the bearer header
// and the caller should use AwaitAuth; without one, use Handshake.
func DialWebSocket(ctx context.Context, base, token string) (*Stream, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	ws.SetReadLimit(maxLineSize)
	return &Stream{
		codec: transport.JSONCodec{},
		read: func() ([]byte, error) {
			_, b, err := ws.ReadMessage()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, net.ErrClosed
			}
			return b, err
		},
		write: func(b []byte) error {
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			return ws.WriteMessage(websocket.TextMessage, b)
		},
		close: func() error {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return ws.Close()
		},
	}, nil
}

// DialTCP connects to the server's line-protocol listener.
func DialTCP(ctx context.Context, addr string) (*Stream, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sc := bufio.NewScanner(nc)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Stream{
		codec: transport.LineCodec{},
		read: func() ([]byte, error) {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, err
				}
				return nil, net.ErrClosed
			}
			return []byte(strings.TrimRight(sc.Text(), "\r")), nil
		},
		write: func(b []byte) error {
			_ = nc.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_, err := nc.Write(append(b, '\n'))
			return err
		},
		close: nc.Close,
	}, nil
}

// Handshake runs the interactive login or signup exchange.
func (s *Stream) Handshake(mode domain.AuthMode, creds domain.Credentials) (domain.Identity, error) {
	if err := s.expect(domain.EnvelopeAuthMode); err != nil {
		return "", err
	}
	b, err := s.codec.EncodeMode(mode)
	if err != nil {
		return "", err
	}
	if err := s.send(b); err != nil {
		return "", err
	}
	env, err := s.Next()
	if err != nil {
		return "", err
	}
	if env.Type == domain.EnvelopeAuthFail {
		return "", domain.Reject(env.Reason)
	}
	if env.Type != domain.EnvelopeSendCredentials {
		return "", fmt.Errorf("%w: got %s, want %s", ErrUnexpectedEnvelope, env.Type, domain.EnvelopeSendCredentials)
	}
	if b, err = s.codec.EncodeCredentials(creds); err != nil {
		return "", err
	}
	if err := s.send(b); err != nil {
		return "", err
	}
	id, err := s.AwaitAuth()
	if err == nil && id == "" {
		// The line protocol's success keyword carries no identity.
		id = domain.Identity(creds.Username)
	}
	return id, err
}

// AwaitAuth reads the handshake verdict. A rejection is returned as a
// *domain.RejectionError carrying the server's reason.
func (s *Stream) AwaitAuth() (domain.Identity, error) {
	env, err := s.Next()
	if err != nil {
		return "", err
	}
	switch env.Type {
	case domain.EnvelopeAuthSuccess:
		return env.Identity, nil
	case domain.EnvelopeAuthFail:
		return "", domain.Reject(env.Reason)
	default:
		return "", fmt.Errorf("%w: got %s during handshake", ErrUnexpectedEnvelope, env.Type)
	}
}

// Send writes one relay frame.
func (s *Stream) Send(frame domain.InboundFrame) error {
	b, err := s.codec.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return s.send(b)
}

// Next blocks for the next envelope from the server. A closed stream
// reports net.ErrClosed.
func (s *Stream) Next() (domain.Envelope, error) {
	raw, err := s.read()
	if err != nil {
		return domain.Envelope{}, err
	}
	return s.codec.DecodeEnvelope(raw)
}

// SendAndWait sends frame and returns its acknowledgement, handing any
// other envelopes that arrive first to other.
func (s *Stream) SendAndWait(frame domain.InboundFrame, other func(domain.Envelope)) (domain.Envelope, error) {
	if err := s.Send(frame); err != nil {
		return domain.Envelope{}, err
	}
	for {
		env, err := s.Next()
		if err != nil {
			return domain.Envelope{}, err
		}
		switch env.Type {
		case domain.EnvelopeSent:
			return env, nil
		case domain.EnvelopeError:
			return env, domain.Reject(env.Reason)
		}
		if other != nil {
			other(env)
		}
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *Stream) send(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.write(b)
}

func (s *Stream) expect(typ domain.EnvelopeType) error {
	env, err := s.Next()
	if err != nil {
		return err
	}
	if env.Type != typ {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedEnvelope, env.Type, typ)
	}
	return nil
}
