package response

import (
	"io"

	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/kv"
)

// UnsizedStream marks a stream of unknown length, transferred chunked.
const UnsizedStream int64 = -1

// Fields is the raw content of a response under construction. It is separated
// from http.Response so the serializer can reach the data without exporting
// setters nobody outside the engine should call.
type Fields struct {
	Status   status.Status
	Headers  []kv.Pair
	Trailers []kv.Pair
	// Body holds an in-memory body. Mutually exclusive with Stream.
	Body []byte
	// Stream holds a streamed body of StreamSize bytes, or UnsizedStream if the
	// length is not known in advance.
	Stream     io.Reader
	StreamSize int64
	Code       status.Code
}

func (f Fields) Clear() Fields {
	f.Code = status.OK
	f.Status = ""
	f.Headers = f.Headers[:0]
	f.Trailers = f.Trailers[:0]
	f.Body = nil
	f.Stream = nil
	f.StreamSize = 0

	return f
}
