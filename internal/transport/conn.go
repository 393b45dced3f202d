package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
)

const (
	// DefaultQueueSize is the number of envelopes a handle buffers before
	// Send starts failing with domain.ErrSlowConsumer.
	DefaultQueueSize = 64

	// DefaultWriteWait bounds a single socket write.
	DefaultWriteWait = 10 * time.Second

	// DefaultMaxFrameSize caps the size of one inbound frame. Larger frames
	// are discarded and reported as domain.ErrFrameTooLarge.
	DefaultMaxFrameSize = 1 << 20
)

// Options tunes a connection handle. Zero values select the defaults.
type Options struct {
	QueueSize    int
	WriteWait    time.Duration
	MaxFrameSize int
	Logger       zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}

// socket is the transport-specific half of a handle, driven by writeLoop.
type socket interface {
	writeFrame(b []byte) error
	ping() error
	shutdown() error
}

// base carries the queueing and lifecycle logic shared by every transport.
type base struct {
	id        string
	remote    string
	transport string
	codec     domain.Codec
	log       zerolog.Logger

	queue     chan []byte
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newBase(transport, remote string, codec domain.Codec, opts Options) base {
	id := uuid.NewString()
	return base{
		id:        id,
		remote:    remote,
		transport: transport,
		codec:     codec,
		log: opts.Logger.With().
			Str("conn_id", id).
			Str("transport", transport).
			Str("remote", remote).
			Logger(),
		queue:   make(chan []byte, opts.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *base) ID() string            { return c.id }
func (c *base) RemoteAddr() string    { return c.remote }
func (c *base) Transport() string     { return c.transport }
func (c *base) Codec() domain.Codec   { return c.codec }
func (c *base) Done() <-chan struct{} { return c.done }

// Send encodes env and queues it for the writer without blocking.
func (c *base) Send(env domain.Envelope) error {
	b, err := c.codec.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	select {
	case <-c.closing:
		return domain.ErrConnClosed
	default:
	}
	select {
	case c.queue <- b:
		return nil
	default:
		return domain.ErrSlowConsumer
	}
}

// Close marks the handle closed. Queued frames are flushed by the writer
// before the socket is shut down. It is safe to call more than once.
func (c *base) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	return nil
}

// writeLoop is the only goroutine that writes to s.
func (c *base) writeLoop(s socket, pingPeriod time.Duration) {
	defer func() {
		_ = c.Close()
		if err := s.shutdown(); err != nil {
			c.log.Debug().Err(err).Msg("shutdown")
		}
		close(c.done)
	}()

	var tick <-chan time.Time
	if pingPeriod > 0 {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case b := <-c.queue:
			if err := s.writeFrame(b); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-tick:
			if err := s.ping(); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-c.closing:
			c.drain(s)
			return
		}
	}
}

func (c *base) drain(s socket) {
	for {
		select {
		case b := <-c.queue:
			if err := s.writeFrame(b); err != nil {
				return
			}
		default:
			return
		}
	}
}
