package client

import (
	"bytes"
	"io"
	"strings"

	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/kv"
	json "github.com/json-iterator/go"
)

// UnsizedBody marks an outbound body of unknown length, transferred with
// chunked framing.
const UnsizedBody int64 = -1

// Request is an outbound request under construction. The builder methods
// return the request itself for chaining; none of them fails in place, an
// invalid combination surfaces as an error from Conn.Do instead.
type Request struct {
	Method   method.Method
	Target   string
	Protocol proto.Protocol
	// Headers are sent verbatim in insertion order. The engine adds only the
	// framing header the chosen body requires, and only if the caller did not
	// state one themselves.
	Headers  *kv.Storage
	Body     io.Reader
	BodySize int64

	err error
}

func NewRequest(m method.Method, target string) *Request {
	return &Request{
		Method:   m,
		Target:   target,
		Protocol: proto.HTTP11,
		Headers:  kv.New(),
	}
}

// Header adds a header field. Passing multiple values adds multiple fields
// under the same name.
func (r *Request) Header(key string, values ...string) *Request {
	for _, value := range values {
		r.Headers.Add(key, value)
	}

	return r
}

// String sets a fixed-size in-memory body.
func (r *Request) String(body string) *Request {
	r.Body = strings.NewReader(body)
	r.BodySize = int64(len(body))

	return r
}

// Bytes sets a fixed-size in-memory body.
func (r *Request) Bytes(body []byte) *Request {
	r.Body = bytes.NewReader(body)
	r.BodySize = int64(len(body))

	return r
}

// JSON marshals the model into the body and sets the content type.
func (r *Request) JSON(model any) *Request {
	data, err := json.Marshal(model)
	if err != nil {
		r.err = err
		return r
	}

	r.Header("Content-Type", "application/json")

	return r.Bytes(data)
}

// Stream sets a streamed body. Pass UnsizedBody as size to transfer it with
// chunked framing; a non-negative size promises the exact byte count and is
// verified during transfer.
func (r *Request) Stream(reader io.Reader, size int64) *Request {
	r.Body = reader
	r.BodySize = size

	return r
}
