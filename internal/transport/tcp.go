package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"cipherelay/internal/domain"
)

// TCPConn is a domain.Conn over a raw stream where every frame is one
// newline-terminated line. Frames are encoded with the line codec.
type TCPConn struct {
	base
	nc        net.Conn
	r         *bufio.Reader
	maxFrame  int
	writeWait time.Duration
}

var _ domain.Conn = (*TCPConn)(nil)

// NewTCPConn wraps nc and starts its writer.
func NewTCPConn(nc net.Conn, opts Options) *TCPConn {
	opts = opts.withDefaults()
	c := &TCPConn{
		base:      newBase("tcp", nc.RemoteAddr().String(), LineCodec{}, opts),
		nc:        nc,
		r:         bufio.NewReaderSize(nc, 4096),
		maxFrame:  opts.MaxFrameSize,
		writeWait: opts.WriteWait,
	}
	go c.writeLoop(c, 0)
	return c
}

// Receive returns the next line without its terminator. A line longer than
// the frame limit is read to its end, dropped, and reported as
// domain.ErrFrameTooLarge. End of stream is reported as io.EOF.
func (c *TCPConn) Receive() ([]byte, error) {
	var (
		line     []byte
		tooLarge bool
	)
	for {
		chunk, err := c.r.ReadSlice('\n')
		if !tooLarge {
			line = append(line, chunk...)
			// Room for the "\r\n" terminator.
			if len(line) > c.maxFrame+2 {
				tooLarge, line = true, nil
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF) && (tooLarge || len(line) > 0):
			// A final unterminated line is still a frame; the next call
			// reports io.EOF.
			line = bytes.TrimRight(bytes.TrimSuffix(line, []byte{'\n'}), "\r")
			if tooLarge || len(line) > c.maxFrame {
				return nil, domain.ErrFrameTooLarge
			}
			return line, nil
		default:
			return nil, err
		}
	}
}

func (c *TCPConn) writeFrame(b []byte) error {
	_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeWait))
	_, err := c.nc.Write(append(b, '\n'))
	return err
}

func (c *TCPConn) ping() error { return nil }

func (c *TCPConn) shutdown() error { return c.nc.Close() }
