package http1

import (
	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/status"
)

// Framing is the mechanism delimiting a message body on the wire.
type Framing uint8

const (
	// FramingNone marks a message carrying no body at all.
	FramingNone Framing = iota
	// FramingFixed marks a body of exactly Length bytes.
	FramingFixed
	// FramingChunked marks a chunked-encoded body.
	FramingChunked
	// FramingUntilClose marks a body running until the peer closes the
	// connection. Only ever legal for client-received responses, and kills
	// keep-alive for the connection.
	FramingUntilClose
)

// BodyFraming is the resolved framing decision for a single message.
type BodyFraming struct {
	Kind   Framing
	Length uint64
}

// ResolveRequest decides how a server-received request body is delimited.
//
// The precedence is fixed: chunked beats a stated Content-Length (a message
// carrying both was already rejected by the parser), and a request stating
// neither has no body. Requests never get the until-close framing: a request
// body with no stated end would make the connection undelimitable.
func ResolveRequest(request *http.Request, cfg config.Body) (BodyFraming, error) {
	switch {
	case request.Chunked:
		return BodyFraming{Kind: FramingChunked}, nil
	case request.ContentLength > 0:
		if request.ContentLength > cfg.MaxSize {
			// fail fast on the declared length instead of waiting for the first
			// over-limit byte.
			return BodyFraming{}, status.ErrBodyTooLarge
		}

		return BodyFraming{Kind: FramingFixed, Length: request.ContentLength}, nil
	default:
		return BodyFraming{Kind: FramingNone}, nil
	}
}

// ResolveResponse decides how a client-received response body is delimited.
// The request method and the response code take the highest precedence: some
// exchanges never carry a response body no matter what the headers claim.
func ResolveResponse(
	reqMethod method.Method,
	code status.Code,
	chunked bool,
	metContentLength bool,
	contentLength uint64,
	cfg config.Body,
) (BodyFraming, error) {
	switch {
	case reqMethod == method.HEAD,
		code.Bodyless(),
		reqMethod == method.CONNECT && code >= 200 && code <= 299:
		return BodyFraming{Kind: FramingNone}, nil
	case chunked:
		return BodyFraming{Kind: FramingChunked}, nil
	case metContentLength:
		if contentLength > cfg.MaxSize {
			return BodyFraming{}, status.ErrBodyTooLarge
		}

		if contentLength == 0 {
			return BodyFraming{Kind: FramingNone}, nil
		}

		return BodyFraming{Kind: FramingFixed, Length: contentLength}, nil
	default:
		return BodyFraming{Kind: FramingUntilClose}, nil
	}
}

// ForcesClose reports whether the framing alone rules keep-alive out.
func (b BodyFraming) ForcesClose() bool {
	return b.Kind == FramingUntilClose
}
