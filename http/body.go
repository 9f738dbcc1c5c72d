package http

import (
	"io"

	"github.com/cobalt-web/cobalt/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

// Retriever produces an inbound body frame by frame. It is implemented by the
// engine's framing decoders and never by user code.
type Retriever interface {
	// Retrieve returns the next data frame. An empty frame is a valid no-op and
	// must not be confused with the end of the body, which is signalled by io.EOF.
	// The returned slice is valid only until the next call.
	Retrieve() ([]byte, error)
	// LengthHint returns the declared body length, if the framing states one.
	LengthHint() (length uint64, known bool)
	// Trailers returns trailer fields of a chunked body. Valid only after
	// Retrieve reported io.EOF; nil if the body carries none.
	Trailers() *kv.Storage
}

// Body provides streaming access to a message body. It is a lazy, forward-only
// sequence of frames: bytes are pulled from the transport no sooner than they
// are asked for, and no frame can be read twice.
type Body struct {
	retriever Retriever
	pending   []byte
	buff      []byte
	error     error
}

func NewBody() *Body {
	return new(Body)
}

// Reset prepares the body for a new exchange.
func (b *Body) Reset(retriever Retriever) {
	b.retriever = retriever
	b.pending = nil
	b.error = nil
}

// Retrieve returns the next body frame. io.EOF signals the end of the body and
// carries no data. All errors, including io.EOF, are sticky.
func (b *Body) Retrieve() ([]byte, error) {
	if b.error != nil {
		return nil, b.error
	}

	data, err := b.retriever.Retrieve()
	if err != nil {
		b.error = err
	}

	return data, err
}

// Read implements io.Reader over the frame stream.
func (b *Body) Read(p []byte) (n int, err error) {
	for len(b.pending) == 0 {
		b.pending, err = b.Retrieve()
		if err != nil {
			return 0, err
		}
	}

	n = copy(p, b.pending)
	b.pending = b.pending[n:]

	return n, nil
}

// Bytes buffers the whole body in memory and returns it. The returned slice is
// valid until the next exchange re-uses this body instance.
func (b *Body) Bytes() ([]byte, error) {
	b.buff = b.buff[:0]

	err := b.Callback(func(data []byte) error {
		b.buff = append(b.buff, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return b.buff, nil
}

// String returns the whole body as a string.
func (b *Body) String() (string, error) {
	data, err := b.Bytes()
	return uf.B2S(data), err
}

// JSON buffers the whole body and unmarshals it into the model.
func (b *Body) JSON(model any) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, model)
}

// Callback invokes cb on every body frame. Stops at the first error, which is
// then returned (except io.EOF, marking a peaceful end of the body).
func (b *Body) Callback(cb func(data []byte) error) error {
	for {
		data, err := b.Retrieve()
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}

		if err = cb(data); err != nil {
			return err
		}
	}
}

// Discard reads the rest of the body out of the connection and throws it away.
func (b *Body) Discard() error {
	return b.Callback(func([]byte) error { return nil })
}

// LengthHint returns the declared body length, if the framing states one.
// A stated hint later violated by the actual stream is a fatal framing error.
func (b *Body) LengthHint() (length uint64, known bool) {
	return b.retriever.LengthHint()
}

// Trailers returns trailer fields following a chunked body. Valid only after
// the body was fully read.
func (b *Body) Trailers() *kv.Storage {
	return b.retriever.Trailers()
}

// Error returns the sticky error, if any. io.EOF is reported as nil.
func (b *Body) Error() error {
	if b.error == io.EOF {
		return nil
	}

	return b.error
}
