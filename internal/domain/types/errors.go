package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRecipient is returned for an addressed frame with no recipient.
	ErrMissingRecipient = errors.New("missing recipient")
	// ErrMissingPayload is returned when a frame carries no payload field.
	ErrMissingPayload = errors.New("missing payload")
	// ErrUnexpectedRecipient is returned for a broadcast frame naming a recipient.
	ErrUnexpectedRecipient = errors.New("broadcast frame must not name a recipient")
	// ErrMalformedFrame is returned when raw bytes cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is returned by Receive when an inbound frame exceeds the
	// handle's size limit. The oversized frame has been discarded and the
	// connection remains usable.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrCloseRequested is returned by a codec when the peer asks to end the session.
	ErrCloseRequested = errors.New("close requested by peer")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection's outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
)

// RejectionError carries a human-readable reason that is safe to show to the
// peer that caused it.
type RejectionError struct {
	Reason string
	Err    error
}

// Reject returns a RejectionError with the given reason.
func Reject(reason string) *RejectionError {
	return &RejectionError{Reason: reason}
}

// Rejectf wraps err with a peer-visible reason.
func Rejectf(err error, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: fmt.Sprintf(format, args...), Err: err}
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Err }

// RejectionReason extracts the peer-visible reason from err, if any.
func RejectionReason(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
