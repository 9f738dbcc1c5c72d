package http

import (
	"io"

	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/response"
	"github.com/cobalt-web/cobalt/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

// there is no theory behind this number, it just tends to cover the vast
// majority of responses without growing.
const preallocRespHeaders = 7

// Response is a builder for an outbound response. All methods return the
// response itself, allowing chaining. The zero code is 200 OK.
type Response struct {
	fields response.Fields
}

func NewResponse() *Response {
	resp := &Response{
		fields: response.Fields{
			Code:    status.OK,
			Headers: make([]kv.Pair, 0, preallocRespHeaders),
		},
	}

	return resp
}

// Code sets the response code. The standard reason phrase is inferred unless
// Status is called explicitly.
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// Status overrides the reason phrase. Clients by and large ignore it, so there
// is rarely a reason to call this.
func (r *Response) Status(text status.Status) *Response {
	r.fields.Status = text
	return r
}

// Header appends header fields with the key. Insertion order is preserved on
// the wire; setting the same key twice results in two header lines.
func (r *Response) Header(key string, values ...string) *Response {
	for i := range values {
		r.fields.Headers = append(r.fields.Headers, kv.Pair{
			Key:   key,
			Value: values[i],
		})
	}

	return r
}

// Trailer appends a trailer field, to be sent after the body. Forces chunked
// framing onto the response, as no other framing can carry trailers.
func (r *Response) Trailer(key, value string) *Response {
	r.fields.Trailers = append(r.fields.Trailers, kv.Pair{
		Key:   key,
		Value: value,
	})

	return r
}

// String sets a plain in-memory body.
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets an in-memory body. The slice is not copied and must stay intact
// until the response is written.
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body = body
	r.fields.Stream = nil
	r.fields.StreamSize = int64(len(body))

	return r
}

// JSON sets an in-memory body with the marshalled model.
func (r *Response) JSON(model any) *Response {
	data, err := json.Marshal(model)
	if err != nil {
		// the response object has no error slot, and growing one for the sake of
		// broken models isn't worth it. A 500 is exactly what happened here.
		r.fields = r.fields.Clear()
		return r.Code(status.InternalServerError)
	}

	r.Header("Content-Type", "application/json")

	return r.Bytes(data)
}

// Stream sets a streamed body of the given size. Pass response.UnsizedStream
// (-1) when the length is not known in advance; such bodies are transferred
// chunked. A sized stream yielding more or fewer bytes than declared is a fatal
// framing error, as the wrong byte count was already promised to the peer.
func (r *Response) Stream(reader io.Reader, size int64) *Response {
	r.fields.Body = nil
	r.fields.Stream = reader
	r.fields.StreamSize = size

	return r
}

// Expose grants access to the underlying fields. Meant for the engine's
// serializer, of no use for handlers.
func (r *Response) Expose() *response.Fields {
	return &r.fields
}

// Clear resets the response into the pristine state, keeping allocations.
func (r *Response) Clear() *Response {
	r.fields = r.fields.Clear()
	return r
}
