package status

// HTTPError is an error carrying the status code a server-role connection would
// answer with. A zero (CloseConnection) code means there is nothing meaningful
// to tell the peer and the connection must simply be torn down.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// ErrorCode extracts the response code of an error, falling back to 400 for
// errors of foreign types.
func ErrorCode(err error) Code {
	if http, ok := err.(HTTPError); ok {
		return http.Code
	}

	return BadRequest
}

var (
	ErrCloseConnection = NewError(CloseConnection, "actively closing the connection")

	// Malformed head.
	ErrBadRequest           = NewError(BadRequest, "bad request")
	ErrMethodNotImplemented = NewError(NotImplemented, "request method is not supported")
	ErrBadHeaderName        = NewError(BadRequest, "malformed header field name")
	ErrHeaderFolding        = NewError(BadRequest, "obsolete header line folding")
	ErrBadStatusLine        = NewError(BadRequest, "malformed status line")

	// Size limits.
	ErrTooLongRequestLine   = NewError(BadRequest, "request line is too long")
	ErrURITooLong           = NewError(RequestURITooLong, "request URI too long")
	ErrHeaderFieldsTooLarge = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders       = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrBodyTooLarge         = NewError(RequestEntityTooLarge, "request body is too large")
	ErrChunkTooLarge        = NewError(RequestEntityTooLarge, "chunk exceeds the size limit")

	// Framing.
	ErrConflictingFraming  = NewError(BadRequest, "ambiguous message length signals")
	ErrUnsupportedEncoding = NewError(NotImplemented, "transfer encoding is not supported")
	ErrBadChunk            = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBodyMismatch        = NewError(CloseConnection, "body does not match the declared length")
	ErrUnexpectedEOF       = NewError(CloseConnection, "connection closed before the message completed")

	// Connection-level misuse and failures.
	ErrProtocolMisuse          = NewError(CloseConnection, "connection is no longer driven by the engine")
	ErrPipelineOverflow        = NewError(CloseConnection, "too many pipelined requests in flight")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
	ErrNotImplemented          = NewError(NotImplemented, "not implemented")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrExpectationFailed       = NewError(ExpectationFailed, "expectation failed")
)
