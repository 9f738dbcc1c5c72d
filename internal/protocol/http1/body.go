package http1

import (
	"io"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/kv"
	"github.com/cobalt-web/cobalt/transport"
)

// Body decodes an inbound message body off the transport according to the
// resolved framing. It implements http.Retriever and is re-armed via Reset for
// every exchange of the connection.
//
// Backpressure falls out of the pull model: nothing is read off the transport
// until the consumer asks for the next frame, so a slow consumer simply leaves
// the bytes in the kernel buffer.
type Body struct {
	client  transport.Client
	framing BodyFraming
	maxSize uint64

	bytesLeft uint64
	received  uint64
	chunked   chunkedParser
	done      bool

	// onFirstRetrieve fires before the first transport read of the body. Carries
	// the deferred 100 Continue interim response on the server role.
	onFirstRetrieve func() error
	started         bool
}

func NewBody(client transport.Client, cfg config.Body) *Body {
	return &Body{
		client:  client,
		maxSize: cfg.MaxSize,
		chunked: newChunkedParser(cfg),
		done:    true,
	}
}

// Reset arms the body for a new exchange with the given framing.
func (b *Body) Reset(framing BodyFraming) {
	b.framing = framing
	b.bytesLeft = framing.Length
	b.received = 0
	b.chunked.reset()
	b.done = framing.Kind == FramingNone
	b.onFirstRetrieve = nil
	b.started = false
}

// OnFirstRetrieve registers a hook fired once, right before the first transport
// read of this body.
func (b *Body) OnFirstRetrieve(cb func() error) {
	b.onFirstRetrieve = cb
}

// Fully reports whether the body was consumed to its end, making the
// connection ready for the next exchange.
func (b *Body) Fully() bool {
	return b.done
}

// Started reports whether at least one frame was requested.
func (b *Body) Started() bool {
	return b.started
}

func (b *Body) Retrieve() ([]byte, error) {
	if !b.started {
		b.started = true

		if b.onFirstRetrieve != nil {
			if err := b.onFirstRetrieve(); err != nil {
				return nil, err
			}
		}
	}

	if b.done {
		return nil, io.EOF
	}

	switch b.framing.Kind {
	case FramingFixed:
		return b.retrieveFixed()
	case FramingChunked:
		return b.retrieveChunked()
	case FramingUntilClose:
		return b.retrieveUntilClose()
	default:
		panic("unreachable code")
	}
}

// LengthHint returns the declared body length, known only for fixed framing.
func (b *Body) LengthHint() (length uint64, known bool) {
	if b.framing.Kind == FramingFixed {
		return b.framing.Length, true
	}

	return 0, false
}

// Trailers returns trailer fields of a chunked body, valid after the body was
// fully read. Nil for all other framings.
func (b *Body) Trailers() *kv.Storage {
	if !b.done {
		return nil
	}

	return b.chunked.Trailers()
}

func (b *Body) retrieveFixed() ([]byte, error) {
	data, err := b.client.Read()
	if err != nil {
		if err == io.EOF {
			// the peer promised more bytes than it delivered.
			err = status.ErrUnexpectedEOF
		}

		return nil, err
	}

	if datalen := uint64(len(data)); datalen >= b.bytesLeft {
		body := data[:b.bytesLeft]
		b.client.Unread(data[b.bytesLeft:])
		b.bytesLeft = 0
		b.done = true

		return body, nil
	}

	b.bytesLeft -= uint64(len(data))

	return data, nil
}

func (b *Body) retrieveChunked() ([]byte, error) {
	for {
		data, err := b.client.Read()
		if err != nil {
			if err == io.EOF {
				err = status.ErrUnexpectedEOF
			}

			return nil, err
		}

		chunk, extra, err := b.chunked.Parse(data)
		switch err {
		case nil:
		case io.EOF:
			b.client.Unread(extra)
			b.done = true

			return nil, io.EOF
		default:
			return nil, err
		}

		received, overflow := addUint(b.received, uint64(len(chunk)))
		if overflow || received > b.maxSize {
			return nil, status.ErrBodyTooLarge
		}

		b.received = received
		b.client.Unread(extra)

		if len(chunk) == 0 {
			// the buffer boundary fell inside chunk metadata. Not a frame worth
			// reporting, and deliberately not confusable with an empty chunk.
			continue
		}

		return chunk, nil
	}
}

func (b *Body) retrieveUntilClose() ([]byte, error) {
	data, err := b.client.Read()
	if err != nil {
		if err == io.EOF {
			// for a close-delimited body the close IS the delimiter.
			b.done = true
		}

		return nil, err
	}

	received, overflow := addUint(b.received, uint64(len(data)))
	if overflow || received > b.maxSize {
		return nil, status.ErrBodyTooLarge
	}

	b.received = received

	return data, nil
}

func addUint(x, y uint64) (sum uint64, overflow bool) {
	sum = x + y
	return sum, sum < x
}
