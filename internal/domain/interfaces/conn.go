package interfaces

import domaintypes "cipherelay/internal/domain/types"

// Conn is a live bidirectional channel to one peer.
//
// Send never blocks: it queues the envelope for the connection's writer and
// fails when the connection is closed or its queue is full. Receive blocks
// until the next raw frame arrives or the connection fails. Close is
// idempotent and lets already-queued envelopes drain before the socket shuts.
type Conn interface {
	ID() string
	RemoteAddr() string
	Transport() string
	Codec() Codec
	Send(env domaintypes.Envelope) error
	Receive() ([]byte, error)
	Close() error
	Done() <-chan struct{}
}

// Codec translates between raw transport frames and domain values. Servers
// use the Decode*/EncodeEnvelope half; clients use the other half.
type Codec interface {
	Name() string

	EncodeEnvelope(env domaintypes.Envelope) ([]byte, error)
	DecodeMode(raw []byte) (domaintypes.AuthMode, error)
	DecodeCredentials(raw []byte) (domaintypes.Credentials, error)
	DecodeFrame(raw []byte) (domaintypes.InboundFrame, error)

	DecodeEnvelope(raw []byte) (domaintypes.Envelope, error)
	EncodeMode(mode domaintypes.AuthMode) ([]byte, error)
	EncodeCredentials(creds domaintypes.Credentials) ([]byte, error)
	EncodeFrame(frame domaintypes.InboundFrame) ([]byte, error)
}
