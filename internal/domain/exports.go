package domain

import (
	interfaces "cipherelay/internal/domain/interfaces"
	types "cipherelay/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Identity       = types.Identity
	Fingerprint    = types.Fingerprint
	AuthMode       = types.AuthMode
	Credentials    = types.Credentials
	EnvelopeType   = types.EnvelopeType
	Envelope       = types.Envelope
	InboundFrame   = types.InboundFrame
	DeliveryResult = types.DeliveryResult
	Presence       = types.Presence
	RejectionError = types.RejectionError
	Account        = types.Account
	AccountProfile = types.AccountProfile
	Message        = types.Message
	IdentityKeys   = types.IdentityKeys
	X25519Public   = types.X25519Public
	X25519Private  = types.X25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Conn            = interfaces.Conn
	Codec           = interfaces.Codec
	CredentialGate  = interfaces.CredentialGate
	TokenVerifier   = interfaces.TokenVerifier
	TokenIssuer     = interfaces.TokenIssuer
	AccountStore    = interfaces.AccountStore
	MessageStore    = interfaces.MessageStore
	MessageRecorder = interfaces.MessageRecorder
	MessageHistory  = interfaces.MessageHistory
	IdentityStore   = interfaces.IdentityStore
	ProfileStore    = interfaces.ProfileStore
	IdentityService = interfaces.IdentityService
)

const (
	AuthModeLogin  = types.AuthModeLogin
	AuthModeSignup = types.AuthModeSignup
	AuthModeToken  = types.AuthModeToken

	EnvelopeMessage         = types.EnvelopeMessage
	EnvelopeSent            = types.EnvelopeSent
	EnvelopeError           = types.EnvelopeError
	EnvelopeSystem          = types.EnvelopeSystem
	EnvelopeAuthMode        = types.EnvelopeAuthMode
	EnvelopeSendCredentials = types.EnvelopeSendCredentials
	EnvelopeAuthSuccess     = types.EnvelopeAuthSuccess
	EnvelopeAuthFail        = types.EnvelopeAuthFail
)

var (
	ErrMissingRecipient    = types.ErrMissingRecipient
	ErrMissingPayload      = types.ErrMissingPayload
	ErrUnexpectedRecipient = types.ErrUnexpectedRecipient
	ErrMalformedFrame      = types.ErrMalformedFrame
	ErrFrameTooLarge       = types.ErrFrameTooLarge
	ErrCloseRequested      = types.ErrCloseRequested
	ErrConnClosed          = types.ErrConnClosed
	ErrSlowConsumer        = types.ErrSlowConsumer

	ParseAuthMode   = types.ParseAuthMode
	Reject          = types.Reject
	Rejectf         = types.Rejectf
	RejectionReason = types.RejectionReason
	ErrorEnvelope   = types.ErrorEnvelope
	SystemEnvelope  = types.SystemEnvelope
)
