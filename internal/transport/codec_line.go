package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cipherelay/internal/domain"
)

// Line protocol keywords. The handshake keywords match the ones legacy
// terminal clients already understand.
const (
	lineAuthMode        = "AUTH_MODE"
	lineSendCredentials = "SEND_CREDENTIALS"
	lineAuthSuccess     = "AUTH_SUCCESS"
	lineSignupSuccess   = "SIGNUP_SUCCESS"
	lineAuthFail        = "AUTH_FAIL"
	lineSignupFail      = "SIGNUP_FAIL"
	lineMessage         = "MSG"
	lineSent            = "SENT"
	lineError           = "ERROR"
	lineSystem          = "SYSTEM"

	lineSep     = "||"
	lineDirect  = "/to"
	lineExit    = "/exit"
	lineLogin   = "LOGIN"
	lineSignup  = "SIGNUP"
	lineTimeFmt = time.RFC3339Nano
)

var errUnencodable = errors.New("value cannot be carried by the line protocol")

// LineCodec is the TCP wire format: one frame per line, fields separated
// by "||". Payloads written to the peer escape backslashes and newlines so
// arbitrary ciphertext survives line framing.
type LineCodec struct{}

var _ domain.Codec = LineCodec{}

func (LineCodec) Name() string { return "line" }

func (LineCodec) EncodeEnvelope(env domain.Envelope) ([]byte, error) {
	var s string
	switch env.Type {
	case domain.EnvelopeAuthMode:
		s = lineAuthMode
	case domain.EnvelopeSendCredentials:
		s = lineSendCredentials
	case domain.EnvelopeAuthSuccess:
		s = lineAuthSuccess
		if env.Mode == domain.AuthModeSignup {
			s = lineSignupSuccess
		}
	case domain.EnvelopeAuthFail:
		kw := lineAuthFail
		if env.Mode == domain.AuthModeSignup {
			kw = lineSignupFail
		}
		s = join(kw, flatten(env.Reason))
	case domain.EnvelopeMessage:
		s = join(lineMessage, env.MessageID, env.From.String(), formatTime(env.Timestamp), escape(env.Payload))
	case domain.EnvelopeSent:
		s = join(lineSent, env.MessageID, strconv.FormatBool(env.Delivered),
			strconv.Itoa(env.DeliveredCount), formatTime(env.Timestamp))
	case domain.EnvelopeError:
		s = join(lineError, flatten(env.Reason))
	case domain.EnvelopeSystem:
		s = join(lineSystem, flatten(env.Reason))
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return []byte(s), nil
}

func (LineCodec) DecodeEnvelope(raw []byte) (domain.Envelope, error) {
	line := string(raw)
	kw, rest, _ := strings.Cut(line, lineSep)
	switch kw {
	case lineAuthMode:
		return domain.Envelope{Type: domain.EnvelopeAuthMode}, nil
	case lineSendCredentials:
		return domain.Envelope{Type: domain.EnvelopeSendCredentials}, nil
	case lineAuthSuccess:
		return domain.Envelope{Type: domain.EnvelopeAuthSuccess, Mode: domain.AuthModeLogin}, nil
	case lineSignupSuccess:
		return domain.Envelope{Type: domain.EnvelopeAuthSuccess, Mode: domain.AuthModeSignup}, nil
	case lineAuthFail:
		return domain.Envelope{Type: domain.EnvelopeAuthFail, Mode: domain.AuthModeLogin, Reason: rest}, nil
	case lineSignupFail:
		return domain.Envelope{Type: domain.EnvelopeAuthFail, Mode: domain.AuthModeSignup, Reason: rest}, nil
	case lineError:
		return domain.Envelope{Type: domain.EnvelopeError, Reason: rest}, nil
	case lineSystem:
		return domain.Envelope{Type: domain.EnvelopeSystem, Reason: rest}, nil
	case lineMessage:
		parts := strings.SplitN(rest, lineSep, 4)
		if len(parts) != 4 {
			return domain.Envelope{}, fmt.Errorf("%w: %s needs 4 fields", domain.ErrMalformedFrame, lineMessage)
		}
		ts, err := parseTime(parts[2])
		if err != nil {
			return domain.Envelope{}, err
		}
		return domain.Envelope{
			Type:      domain.EnvelopeMessage,
			MessageID: parts[0],
			From:      domain.Identity(parts[1]),
			Timestamp: ts,
			Payload:   unescape(parts[3]),
		}, nil
	case lineSent:
		parts := strings.Split(rest, lineSep)
		if len(parts) != 4 {
			return domain.Envelope{}, fmt.Errorf("%w: %s needs 4 fields", domain.ErrMalformedFrame, lineSent)
		}
		delivered, err := strconv.ParseBool(parts[1])
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: delivered: %v", domain.ErrMalformedFrame, err)
		}
		count, err := strconv.Atoi(parts[2])
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: count: %v", domain.ErrMalformedFrame, err)
		}
		ts, err := parseTime(parts[3])
		if err != nil {
			return domain.Envelope{}, err
		}
		return domain.Envelope{
			Type:           domain.EnvelopeSent,
			MessageID:      parts[0],
			Delivered:      delivered,
			DeliveredCount: count,
			Timestamp:      ts,
		}, nil
	default:
		return domain.Envelope{}, fmt.Errorf("%w: unknown keyword %q", domain.ErrMalformedFrame, kw)
	}
}

func (LineCodec) DecodeMode(raw []byte) (domain.AuthMode, error) {
	return domain.ParseAuthMode(string(raw))
}

func (LineCodec) DecodeCredentials(raw []byte) (domain.Credentials, error) {
	parts := strings.Split(string(raw), lineSep)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
		return domain.Credentials{}, fmt.Errorf("%w: want username%spassword", domain.ErrMalformedFrame, lineSep)
	}
	return domain.Credentials{Username: parts[0], Password: parts[1]}, nil
}

// DecodeFrame parses one relay line:
//
//	/exit                 end the session
//	/to <user> <payload>  addressed frame
//	anything else         broadcast frame carrying the whole line
func (LineCodec) DecodeFrame(raw []byte) (domain.InboundFrame, error) {
	line := string(raw)
	if line == lineExit {
		return domain.InboundFrame{}, domain.ErrCloseRequested
	}
	if line != lineDirect && !strings.HasPrefix(line, lineDirect+" ") {
		return domain.InboundFrame{Payload: line}, nil
	}

	rest := strings.TrimLeft(strings.TrimPrefix(line, lineDirect), " ")
	recipient, payload, found := strings.Cut(rest, " ")
	if recipient == "" {
		return domain.InboundFrame{}, domain.ErrMissingRecipient
	}
	if !found {
		return domain.InboundFrame{}, domain.ErrMissingPayload
	}
	return domain.InboundFrame{
		Addressed: true,
		Recipient: domain.Identity(recipient),
		Payload:   payload,
	}, nil
}

func (LineCodec) EncodeMode(mode domain.AuthMode) ([]byte, error) {
	switch mode {
	case domain.AuthModeLogin:
		return []byte(lineLogin), nil
	case domain.AuthModeSignup:
		return []byte(lineSignup), nil
	default:
		return nil, fmt.Errorf("%w: mode %q", errUnencodable, mode)
	}
}

func (LineCodec) EncodeCredentials(creds domain.Credentials) ([]byte, error) {
	if strings.Contains(creds.Username, lineSep) || strings.Contains(creds.Password, lineSep) ||
		strings.ContainsAny(creds.Username+creds.Password, "\r\n") {
		return nil, fmt.Errorf("%w: credentials contain %q or a newline", errUnencodable, lineSep)
	}
	return []byte(creds.Username + lineSep + creds.Password), nil
}

func (LineCodec) EncodeFrame(frame domain.InboundFrame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(frame.Payload, "\r\n") {
		return nil, fmt.Errorf("%w: payload contains a newline", errUnencodable)
	}
	if frame.Addressed {
		return []byte(lineDirect + " " + frame.Recipient.String() + " " + frame.Payload), nil
	}
	if frame.Payload == lineExit || frame.Payload == lineDirect || strings.HasPrefix(frame.Payload, lineDirect+" ") {
		return nil, fmt.Errorf("%w: broadcast payload collides with a command", errUnencodable)
	}
	return []byte(frame.Payload), nil
}

func join(parts ...string) string { return strings.Join(parts, lineSep) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(lineTimeFmt)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(lineTimeFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %v", domain.ErrMalformedFrame, err)
	}
	return t, nil
}

// flatten keeps human-readable reasons on one line.
func flatten(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

func escape(s string) string   { return escaper.Replace(s) }
func unescape(s string) string { return unescaper.Replace(s) }
