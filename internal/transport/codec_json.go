package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cipherelay/internal/domain"
)

// connectedMessage is the banner sent with a successful WebSocket handshake.
const connectedMessage = "Connected to secure chat"

// JSONCodec is the WebSocket wire format.
type JSONCodec struct{}

var _ domain.Codec = JSONCodec{}

// wireEnvelope is the JSON shape of every server-to-client frame.
type wireEnvelope struct {
	Type           string   `json:"type"`
	FromUserID     string   `json:"from_user_id,omitempty"`
	ToUserID       string   `json:"to_user_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Ciphertext     *string  `json:"ciphertext,omitempty"`
	Delivered      *bool    `json:"delivered,omitempty"`
	DeliveredCount *int     `json:"delivered_count,omitempty"`
	Broadcast      bool     `json:"broadcast,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	Modes          []string `json:"modes,omitempty"`
	Message        string   `json:"message,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// wireFrame is the JSON shape of a relay request. Pointers distinguish a
// missing field from an empty one.
type wireFrame struct {
	ToUserID   *string `json:"to_user_id,omitempty"`
	Ciphertext *string `json:"ciphertext"`
}

type wireMode struct {
	Mode string `json:"mode"`
}

type wireCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) EncodeEnvelope(env domain.Envelope) ([]byte, error) {
	w := wireEnvelope{Type: string(env.Type)}
	if !env.Timestamp.IsZero() {
		w.Timestamp = env.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	switch env.Type {
	case domain.EnvelopeMessage:
		payload := env.Payload
		w.FromUserID = env.From.String()
		w.ToUserID = env.To.String()
		w.MessageID = env.MessageID
		w.Ciphertext = &payload
	case domain.EnvelopeSent:
		delivered, count := env.Delivered, env.DeliveredCount
		w.MessageID = env.MessageID
		w.Delivered = &delivered
		w.DeliveredCount = &count
		w.Broadcast = env.Broadcast
	case domain.EnvelopeError:
		delivered := false
		w.Delivered = &delivered
		w.Message = env.Reason
	case domain.EnvelopeSystem:
		w.Message = env.Reason
	case domain.EnvelopeAuthMode:
		w.Modes = []string{domain.AuthModeLogin.String(), domain.AuthModeSignup.String()}
	case domain.EnvelopeSendCredentials:
	case domain.EnvelopeAuthSuccess:
		w.UserID = env.Identity.String()
		w.Mode = env.Mode.String()
		w.Message = connectedMessage
	case domain.EnvelopeAuthFail:
		w.Mode = env.Mode.String()
		w.Message = env.Reason
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return json.Marshal(w)
}

func (JSONCodec) DecodeEnvelope(raw []byte) (domain.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	env := domain.Envelope{
		Type:      domain.EnvelopeType(w.Type),
		From:      domain.Identity(w.FromUserID),
		To:        domain.Identity(w.ToUserID),
		MessageID: w.MessageID,
		Broadcast: w.Broadcast,
		Identity:  domain.Identity(w.UserID),
		Mode:      domain.AuthMode(w.Mode),
		Reason:    w.Message,
	}
	if w.Ciphertext != nil {
		env.Payload = *w.Ciphertext
	}
	if w.Delivered != nil {
		env.Delivered = *w.Delivered
	}
	if w.DeliveredCount != nil {
		env.DeliveredCount = *w.DeliveredCount
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: timestamp: %v", domain.ErrMalformedFrame, err)
		}
		env.Timestamp = ts
	}
	if env.Type == "" {
		return domain.Envelope{}, fmt.Errorf("%w: missing type", domain.ErrMalformedFrame)
	}
	return env, nil
}

func (JSONCodec) DecodeMode(raw []byte) (domain.AuthMode, error) {
	var w wireMode
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	return domain.ParseAuthMode(w.Mode)
}

func (JSONCodec) DecodeCredentials(raw []byte) (domain.Credentials, error) {
	var w wireCredentials
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if strings.TrimSpace(w.Username) == "" || w.Password == "" {
		return domain.Credentials{}, fmt.Errorf("%w: username and password required", domain.ErrMalformedFrame)
	}
	return domain.Credentials{Username: w.Username, Password: w.Password}, nil
}

func (JSONCodec) DecodeFrame(raw []byte) (domain.InboundFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.InboundFrame{}, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if w.Ciphertext == nil {
		return domain.InboundFrame{}, domain.ErrMissingPayload
	}
	f := domain.InboundFrame{Payload: *w.Ciphertext}
	if w.ToUserID != nil {
		f.Addressed = true
		f.Recipient = domain.Identity(*w.ToUserID)
	}
	if err := f.Validate(); err != nil {
		return domain.InboundFrame{}, err
	}
	return f, nil
}

func (JSONCodec) EncodeMode(mode domain.AuthMode) ([]byte, error) {
	return json.Marshal(wireMode{Mode: mode.String()})
}

func (JSONCodec) EncodeCredentials(creds domain.Credentials) ([]byte, error) {
	return json.Marshal(wireCredentials{Username: creds.Username, Password: creds.Password})
}

func (JSONCodec) EncodeFrame(frame domain.InboundFrame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	payload := frame.Payload
	w := wireFrame{Ciphertext: &payload}
	if frame.Addressed {
		to := frame.Recipient.String()
		w.ToUserID = &to
	}
	return json.Marshal(w)
}
