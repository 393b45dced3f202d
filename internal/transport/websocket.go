package transport

import (
	"io"
	"time"

	"github.com/gorilla/websocket"

	"cipherelay/internal/domain"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// discardFactor bounds how far past MaxFrameSize a message may run and
	// still be skipped. Beyond that gorilla's read limit closes the socket.
	discardFactor = 4
)

// WebSocketConn is a domain.Conn over a gorilla/websocket connection.
type WebSocketConn struct {
	base
	ws        *websocket.Conn
	maxFrame  int
	writeWait time.Duration
}

var _ domain.Conn = (*WebSocketConn)(nil)

// NewWebSocketConn wraps an upgraded connection and starts its writer.
// Frames are encoded with the JSON codec.
func NewWebSocketConn(ws *websocket.Conn, opts Options) *WebSocketConn {
	opts = opts.withDefaults()
	c := &WebSocketConn{
		base:      newBase("websocket", ws.RemoteAddr().String(), JSONCodec{}, opts),
		ws:        ws,
		maxFrame:  opts.MaxFrameSize,
		writeWait: opts.WriteWait,
	}

	ws.SetReadLimit(int64(opts.MaxFrameSize) * discardFactor)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop(c, pingPeriod)
	return c
}

// Receive blocks for the next text or binary message. A normal close from
// the peer is reported as io.EOF. A message over the frame limit is
// drained, dropped, and reported as domain.ErrFrameTooLarge.
func (c *WebSocketConn) Receive() ([]byte, error) {
	_, r, err := c.ws.NextReader()
	if err != nil {
		return nil, closeAsEOF(err)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(c.maxFrame)+1))
	if err != nil {
		return nil, closeAsEOF(err)
	}
	if len(data) > c.maxFrame {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, closeAsEOF(err)
		}
		data = nil
		err = domain.ErrFrameTooLarge
	}
	// Any inbound traffic proves liveness.
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return data, err
}

func closeAsEOF(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

func (c *WebSocketConn) writeFrame(b []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *WebSocketConn) ping() error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *WebSocketConn) shutdown() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
