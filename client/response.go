package client

import (
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
)

// Response is a received response head plus streaming access to its body.
//
// Responses returned by Conn.Do are owned by the connection and valid until
// the next exchange on it; head strings are views into connection buffers.
// Responses returned by Conn.Pipeline are detached copies with fully buffered
// bodies and may be retained freely.
type Response struct {
	Protocol proto.Protocol
	Code     status.Code
	Status   status.Status
	Headers  http.Headers
	// ContentLength is the declared body length. Meaningless if Chunked is set
	// or the body is delimited by connection close.
	ContentLength uint64
	Chunked       bool
	Body          *http.Body
}
