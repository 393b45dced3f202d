package types

import "time"

// EnvelopeType tags every frame the server writes to a peer.
type EnvelopeType string

const (
	EnvelopeMessage         EnvelopeType = "message"
	EnvelopeSent            EnvelopeType = "sent"
	EnvelopeError           EnvelopeType = "error"
	EnvelopeSystem          EnvelopeType = "system"
	EnvelopeAuthMode        EnvelopeType = "auth_mode"
	EnvelopeSendCredentials EnvelopeType = "send_credentials"
	EnvelopeAuthSuccess     EnvelopeType = "auth_success"
	EnvelopeAuthFail        EnvelopeType = "auth_fail"
)

// Envelope is the outbound unit written to a connection.
//
// Which fields are meaningful depends on Type:
//   - message: From, To, MessageID, Payload, Timestamp.
//   - sent: MessageID, Delivered, DeliveredCount, Broadcast, Timestamp.
//   - error, system: Reason.
//   - auth_success: Identity, Mode.
//   - auth_fail: Mode, Reason.
type Envelope struct {
	Type           EnvelopeType
	From           Identity
	To             Identity
	MessageID      string
	Payload        string
	Delivered      bool
	DeliveredCount int
	Broadcast      bool
	Reason         string
	Identity       Identity
	Mode           AuthMode
	Timestamp      time.Time
}

// InboundFrame is a relay request read from an authenticated connection.
//
// An addressed frame names one recipient; an unaddressed frame is fanned out
// to every other connected identity. The payload is opaque and may be empty.
type InboundFrame struct {
	Addressed bool
	Recipient Identity
	Payload   string
}

// Validate reports whether the frame can be routed.
func (f InboundFrame) Validate() error {
	if f.Addressed && f.Recipient == "" {
		return ErrMissingRecipient
	}
	if !f.Addressed && f.Recipient != "" {
		return ErrUnexpectedRecipient
	}
	return nil
}

// DeliveryResult is reported back to the sender after one routing attempt.
type DeliveryResult struct {
	MessageID      string
	Delivered      bool
	DeliveredCount int
	Broadcast      bool
	Timestamp      time.Time
}

// Ack builds the acknowledgement envelope for r.
func (r DeliveryResult) Ack() Envelope {
	return Envelope{
		Type:           EnvelopeSent,
		MessageID:      r.MessageID,
		Delivered:      r.Delivered,
		DeliveredCount: r.DeliveredCount,
		Broadcast:      r.Broadcast,
		Timestamp:      r.Timestamp,
	}
}

// ErrorEnvelope builds an error envelope carrying reason. Error envelopes
// only answer relay frames, so wire codecs report them as not delivered.
func ErrorEnvelope(reason string) Envelope {
	return Envelope{Type: EnvelopeError, Reason: reason, Timestamp: time.Now().UTC()}
}

// SystemEnvelope builds an informational envelope carrying text.
func SystemEnvelope(text string) Envelope {
	return Envelope{Type: EnvelopeSystem, Reason: text, Timestamp: time.Now().UTC()}
}

// Presence describes one live registry entry.
type Presence struct {
	Identity     Identity  `json:"user_id"`
	ConnID       string    `json:"connection_id"`
	RemoteAddr   string    `json:"remote_addr"`
	Transport    string    `json:"transport"`
	RegisteredAt time.Time `json:"registered_at"`
}
