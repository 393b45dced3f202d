// Package testutil holds fakes shared by package tests.
package testutil

import (
	"io"
	"sync"
	"testing"
	"time"

	"cipherelay/internal/domain"
	"cipherelay/internal/transport"
)

// FakeConn is an in-memory domain.Conn. Inbound frames are scripted with
// Push; outbound envelopes are recorded and can be awaited with Next.
type FakeConn struct {
	id    string
	codec domain.Codec

	mu         sync.Mutex
	sent       []domain.Envelope
	sendErr    error
	closeAfter domain.EnvelopeType

	out       chan domain.Envelope
	inbox     chan inbound
	hangup    chan struct{}
	hangOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.Conn = (*FakeConn)(nil)

type inbound struct {
	raw []byte
	err error
}

// NewFakeConn returns an open fake using the line codec.
func NewFakeConn(id string) *FakeConn {
	return NewFakeConnWithCodec(id, transport.LineCodec{})
}

// NewFakeConnWithCodec returns an open fake using codec.
func NewFakeConnWithCodec(id string, codec domain.Codec) *FakeConn {
	return &FakeConn{
		id:     id,
		codec:  codec,
		out:    make(chan domain.Envelope, 256),
		inbox:  make(chan inbound, 256),
		hangup: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *FakeConn) ID() string            { return c.id }
func (c *FakeConn) RemoteAddr() string    { return "fake:" + c.id }
func (c *FakeConn) Transport() string     { return "fake" }
func (c *FakeConn) Codec() domain.Codec   { return c.codec }
func (c *FakeConn) Done() <-chan struct{} { return c.done }

func (c *FakeConn) Send(env domain.Envelope) error {
	select {
	case <-c.done:
		return domain.ErrConnClosed
	default:
	}
	c.mu.Lock()
	err := c.sendErr
	if err == nil {
		c.sent = append(c.sent, env)
	}
	closeNow := err == nil && c.closeAfter != "" && env.Type == c.closeAfter
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case c.out <- env:
	default:
	}
	if closeNow {
		_ = c.Close()
	}
	return nil
}

func (c *FakeConn) Receive() ([]byte, error) {
	select {
	case in := <-c.inbox:
		return in.raw, in.err
	default:
	}
	select {
	case in := <-c.inbox:
		return in.raw, in.err
	case <-c.hangup:
		return nil, io.EOF
	case <-c.done:
		return nil, domain.ErrConnClosed
	}
}

func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Push queues an inbound raw frame.
func (c *FakeConn) Push(raw string) { c.inbox <- inbound{raw: []byte(raw)} }

// PushErr makes a later Receive fail with err, in order with pushed frames.
func (c *FakeConn) PushErr(err error) { c.inbox <- inbound{err: err} }

// CloseAfter closes the conn right after it accepts an envelope of type typ.
func (c *FakeConn) CloseAfter(typ domain.EnvelopeType) {
	c.mu.Lock()
	c.closeAfter = typ
	c.mu.Unlock()
}

// Hangup makes the next Receive report end of stream once the inbox is empty.
func (c *FakeConn) Hangup() { c.hangOnce.Do(func() { close(c.hangup) }) }

// FailSends makes every later Send return err.
func (c *FakeConn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns a copy of every envelope accepted so far.
func (c *FakeConn) Sent() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.sent...)
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Next waits for the next accepted envelope.
func (c *FakeConn) Next(t testing.TB) domain.Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("conn %s: no envelope within timeout", c.id)
		return domain.Envelope{}
	}
}

// NextOfType skips envelopes until one of type typ arrives.
func (c *FakeConn) NextOfType(t testing.TB, typ domain.EnvelopeType) domain.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.out:
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("conn %s: no %s envelope within timeout", c.id, typ)
			return domain.Envelope{}
		}
	}
}

// WaitClosed fails the test unless the conn is closed within the timeout.
func (c *FakeConn) WaitClosed(t testing.TB) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("conn %s: not closed within timeout", c.id)
	}
}
