package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
)

var (
	// ErrInvalidFrame is returned for frames that cannot be routed.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrBroadcastDisabled is returned for unaddressed frames when fan-out is off.
	ErrBroadcastDisabled = errors.New("broadcast is disabled on this relay")
)

// Deliverer is the part of the connection registry the router needs.
type Deliverer interface {
	Send(id domain.Identity, env domain.Envelope) bool
	Broadcast(exclude domain.Identity, env domain.Envelope) int
}

// Options tune a Service.
type Options struct {
	// Broadcast enables fan-out of unaddressed frames.
	Broadcast bool
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Service routes inbound frames.
type Service struct {
	registry  Deliverer
	recorder  domain.MessageRecorder
	broadcast bool
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger
}

// New returns a router delivering through registry. recorder may be nil, in
// which case no history is kept.
func New(registry Deliverer, recorder domain.MessageRecorder, opts Options, log zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		registry:  registry,
		recorder:  recorder,
		broadcast: opts.Broadcast,
		now:       opts.Now,
		newID:     opts.NewID,
		log:       log.With().Str("component", "router").Logger(),
	}
}

// Route makes one delivery attempt for frame on behalf of sender.
//
// The returned error is non-nil only when the frame was not routed at all;
// an offline recipient is a successful route with Delivered false.
func (s *Service) Route(
	ctx context.Context,
	sender domain.Identity,
	frame domain.InboundFrame,
) (domain.DeliveryResult, error) {
	if err := frame.Validate(); err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if !frame.Addressed && !s.broadcast {
		return domain.DeliveryResult{}, ErrBroadcastDisabled
	}
	if err := ctx.Err(); err != nil {
		return domain.DeliveryResult{}, err
	}

	now := s.now()
	env := domain.Envelope{
		Type:      domain.EnvelopeMessage,
		From:      sender,
		To:        frame.Recipient,
		MessageID: s.newID(),
		Payload:   frame.Payload,
		Broadcast: !frame.Addressed,
		Timestamp: now,
	}
	s.record(env)

	res := domain.DeliveryResult{
		MessageID: env.MessageID,
		Broadcast: !frame.Addressed,
		Timestamp: now,
	}
	if frame.Addressed {
		res.Delivered = s.registry.Send(frame.Recipient, env)
		if res.Delivered {
			res.DeliveredCount = 1
		}
	} else {
		res.DeliveredCount = s.registry.Broadcast(sender, env)
		res.Delivered = res.DeliveredCount > 0
	}

	s.log.Debug().
		Str("message_id", res.MessageID).
		Str("from", sender.String()).
		Str("to", frame.Recipient.String()).
		Bool("broadcast", res.Broadcast).
		Int("delivered_count", res.DeliveredCount).
		Msg("routed")
	return res, nil
}

func (s *Service) record(env domain.Envelope) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(domain.Message{
		ID:         env.MessageID,
		From:       env.From,
		To:         env.To,
		Ciphertext: env.Payload,
		CreatedAt:  env.Timestamp,
	})
}
