// Package transport defines the byte-stream boundary of the engine. The engine
// consumes any bidirectional stream through the Client interface and never
// touches sockets, TLS or dialing itself.
package transport

import (
	"net"
	"time"
)

// Client is a bidirectional byte stream with a one-slot pushback buffer.
//
// Read blocks until data arrives, returning a slice valid until the next call.
// Unread returns bytes the caller over-consumed; the very next Read yields them
// verbatim. This is how leftovers travel between the head parser, the body
// decoders and, on upgrade, the next protocol taking over the stream.
type Client interface {
	Read() ([]byte, error)
	Unread([]byte)
	Write([]byte) error
	Conn() net.Conn
	Remote() net.Addr
	Close() error
}

type client struct {
	conn    net.Conn
	buff    []byte
	pending []byte
	timeout time.Duration
}

// NewClient wraps a net.Conn. Every read arms the read deadline with the given
// timeout; zero disables deadlines.
func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		conn:    conn,
		buff:    buff,
		timeout: timeout,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)
	if n == 0 && err == nil {
		// net.Conn implementations are allowed to return (0, nil), readers are
		// not. Treat it as a retryable empty read.
		return c.buff[:0], nil
	}

	return c.buff[:n], err
}

func (c *client) Unread(b []byte) {
	if len(b) > 0 {
		c.pending = b
	}
}

func (c *client) Write(b []byte) error {
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			return err
		}

		b = b[n:]
	}

	return nil
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}
