package http

import (
	"net"

	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/transport"
)

// Request is a parsed inbound request head plus streaming access to its body.
// Instances are owned by the connection and re-used between exchanges; a handler
// must not retain one past its own return.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Target is the raw request target, guaranteed to consist of ASCII-printable
	// characters only. The engine does not interpret it further: percent-decoding
	// and routing are caller concerns.
	Target string
	// Protocol the request arrived with.
	Protocol proto.Protocol
	// Headers holds non-normalized header fields in arrival order. Lookup is
	// case-insensitive.
	Headers Headers
	// ContentLength is the declared body length. Meaningless if Chunked is set.
	ContentLength uint64
	// Chunked is set when the body is transferred with chunked framing.
	Chunked bool
	// Connection is the verbatim value of the Connection header, if any.
	Connection string
	// Upgrade is the verbatim value of the Upgrade header, if any.
	Upgrade string
	// ExpectsContinue is set when the request announced Expect: 100-continue and
	// the body was not touched yet. The engine emits the interim response lazily
	// on the first body read; a handler may instead reject the request without
	// ever reading the body.
	ExpectsContinue bool
	// Remote is the address of the peer. Mind proxies before trusting it.
	Remote net.Addr
	// Body provides streaming access to the request body.
	Body *Body

	client   transport.Client
	response *Response
	hijacked bool
}

func NewRequest(headers Headers, body *Body, client transport.Client) *Request {
	remote := net.Addr(nil)
	if client != nil {
		remote = client.Remote()
	}

	return &Request{
		Method:   method.Unknown,
		Protocol: proto.HTTP11,
		Headers:  headers,
		Remote:   remote,
		Body:     body,
		client:   client,
		response: NewResponse(),
	}
}

// Respond returns the response object paired with this request. The builder is
// re-used across exchanges of the connection, so the same caveat as for the
// request itself applies.
func (r *Request) Respond() *Response {
	return r.response
}

// Hijack takes the underlying transport away from the engine. Any bytes already
// read off the stream but not consumed by HTTP are pushed back first, so the new
// protocol reads them as if they never left the socket. The connection is
// considered closed from the engine's perspective; its state machine won't touch
// the stream again, and a second hijack attempt fails.
//
// The request body must be fully read (or absent) before hijacking, otherwise
// its bytes would leak into the next protocol.
//
// Requests served concurrently off a pipeline carry no transport at all: the
// connection is busy parsing the requests behind them. Hijacking those fails.
func (r *Request) Hijack() (transport.Client, error) {
	if r.hijacked || r.client == nil {
		return nil, status.ErrProtocolMisuse
	}

	r.hijacked = true

	return r.client, nil
}

// WasHijacked reports whether the transport ownership left the engine.
func (r *Request) WasHijacked() bool {
	return r.hijacked
}

// Reset prepares the request for the next exchange on the same connection.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.Target = ""
	r.Protocol = proto.HTTP11
	r.Headers.Clear()
	r.ContentLength = 0
	r.Chunked = false
	r.Connection = ""
	r.Upgrade = ""
	r.ExpectsContinue = false
	r.response.Clear()
}

// Respond is a shorthand for request.Respond(), useful as a terse default in
// handlers: return http.Respond(req).
func Respond(request *Request) *Response {
	return request.Respond()
}

// Code responds with the given status code and its standard reason phrase.
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}

// Error responds according to an error produced by a handler: coded errors keep
// their status code, foreign ones map to 500.
func Error(request *Request, err error) *Response {
	code := status.InternalServerError
	if http, ok := err.(status.HTTPError); ok && http.Code != status.CloseConnection {
		code = http.Code
	}

	return request.Respond().Code(code).String(status.FromCode(code))
}
