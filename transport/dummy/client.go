package dummy

import (
	"io"
	"net"

	"github.com/cobalt-web/cobalt/transport"
)

var _ transport.Client = new(MockClient)

// MockClient replays the given slices one per Read, then reports io.EOF.
// Written data is recorded and can be inspected via Written.
type MockClient struct {
	data    [][]byte
	pending []byte
	written []byte
	closed  bool
}

func NewMockClient(data ...[]byte) *MockClient {
	return &MockClient{data: data}
}

func (m *MockClient) Read() ([]byte, error) {
	if len(m.pending) > 0 {
		pending := m.pending
		m.pending = nil

		return pending, nil
	}

	if m.closed || len(m.data) == 0 {
		return nil, io.EOF
	}

	piece := m.data[0]
	m.data = m.data[1:]

	return piece, nil
}

func (m *MockClient) Unread(b []byte) {
	if len(b) > 0 {
		m.pending = b
	}
}

func (m *MockClient) Write(b []byte) error {
	m.written = append(m.written, b...)
	return nil
}

func (m *MockClient) Conn() net.Conn {
	return nil
}

func (m *MockClient) Remote() net.Addr {
	return nil
}

func (m *MockClient) Close() error {
	m.closed = true
	return nil
}

func (m *MockClient) Closed() bool {
	return m.closed
}

// Written returns everything the engine wrote so far.
func (m *MockClient) Written() []byte {
	return m.written
}

// Pending returns the bytes currently sitting in the pushback slot.
func (m *MockClient) Pending() []byte {
	return m.pending
}

// Feed appends another read portion. Handy for scripting request sequences.
func (m *MockClient) Feed(data ...[]byte) *MockClient {
	m.data = append(m.data, data...)
	return m
}

// NewNopClient returns a client that is instantly at EOF.
func NewNopClient() *MockClient {
	return NewMockClient()
}

var _ transport.Client = new(CircularClient)

// CircularClient returns the same data portions on every read, wrapping around
// forever. Used mainly for benchmarking.
type CircularClient struct {
	MockClient
	all     [][]byte
	pointer int
}

func NewCircularClient(data ...[]byte) *CircularClient {
	return &CircularClient{all: data}
}

func (c *CircularClient) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if len(c.all) == 0 {
		return nil, io.EOF
	}

	piece := c.all[c.pointer]
	if c.pointer++; c.pointer >= len(c.all) {
		c.pointer = 0
	}

	return piece, nil
}
