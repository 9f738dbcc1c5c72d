package http1

import (
	"bytes"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/buffer"
	"github.com/cobalt-web/cobalt/internal/httpchars"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/indigo-web/utils/uf"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	eTarget
	eProtocol
	eHeaderKey
	eHeaderValue
	eHeaderValueCRLFCR
)

// Parser is a resumable request-head parser. Parse is fed whatever portion of
// the stream is available; a false done flag means the head is incomplete and
// the parser must simply be re-invoked once more data arrives. No byte is
// consumed twice and none are dropped: leftovers past the head are returned
// via extra.
type Parser struct {
	cfg           *config.Config
	request       *http.Request
	startLine     *buffer.Buffer
	headers       *buffer.Buffer
	key           string
	state         parserState
	headersNumber int

	contentLength       uint64
	metContentLength    bool
	metTransferEncoding bool
}

func NewParser(cfg *config.Config, request *http.Request, startLine, headers *buffer.Buffer) *Parser {
	return &Parser{
		cfg:       cfg,
		request:   request,
		startLine: startLine,
		headers:   headers,
		state:     eMethod,
	}
}

// Parse processes the next portion of the stream. When done is reported, the
// request head is fully populated and extra holds the bytes past it, belonging
// to the body or to the next pipelined request. On error the connection is
// beyond repair: the reported state no longer matches the wire.
func (p *Parser) Parse(data []byte) (done bool, extra []byte, err error) {
	request := p.request
	startLine := p.startLine
	headers := p.headers

	switch p.state {
	case eMethod:
		goto stateMethod
	case eTarget:
		goto stateTarget
	case eProtocol:
		goto stateProtocol
	case eHeaderKey:
		goto stateHeaderKey
	case eHeaderValue:
		goto stateHeaderValue
	case eHeaderValueCRLFCR:
		goto stateHeaderValueCRLFCR
	default:
		panic("unreachable code")
	}

stateMethod:
	for i := 0; i < len(data); i++ {
		if data[i] == ' ' {
			var methodValue []byte
			if startLine.SegmentLength() == 0 {
				methodValue = data[:i]
			} else {
				if !startLine.Append(data[:i]) {
					return true, nil, status.ErrTooLongRequestLine
				}

				methodValue = startLine.Preview()
				startLine.Discard(0)
			}

			request.Method = method.Parse(uf.B2S(methodValue))
			if request.Method == method.Unknown {
				return true, nil, status.ErrMethodNotImplemented
			}

			data = data[i+1:]
			goto stateTarget
		}
	}

	if !startLine.Append(data) {
		return true, nil, status.ErrMethodNotImplemented
	}

	p.state = eMethod
	return false, nil, nil

stateTarget:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case ' ':
			if !startLine.Append(data[:i]) {
				return true, nil, status.ErrURITooLong
			}

			request.Target = uf.B2S(startLine.Finish())
			if len(request.Target) == 0 {
				return true, nil, status.ErrBadRequest
			}

			data = data[i+1:]
			goto stateProtocol
		default:
			if isProhibitedChar(char) {
				return true, nil, status.ErrBadRequest
			}
		}
	}

	if !startLine.Append(data) {
		return true, nil, status.ErrURITooLong
	}

	p.state = eTarget
	return false, nil, nil

stateProtocol:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if !startLine.Append(data) {
				return true, nil, status.ErrTooLongRequestLine
			}

			p.state = eProtocol
			return false, nil, nil
		}

		var protocol proto.Protocol
		if startLine.SegmentLength() == 0 {
			protocol = proto.FromBytes(stripCR(data[:boundary]))
		} else {
			if !startLine.Append(data[:boundary]) {
				return true, nil, status.ErrTooLongRequestLine
			}

			protocol = proto.FromBytes(stripCR(startLine.Preview()))
			startLine.Discard(0)
		}

		if protocol == proto.Unknown {
			return true, nil, status.ErrHTTPVersionNotSupported
		}

		request.Protocol = protocol
		data = data[boundary+1:]
		// fallthrough to stateHeaderKey
	}

stateHeaderKey:
	{
		if len(data) == 0 {
			p.state = eHeaderKey
			return false, nil, nil
		}

		switch data[0] {
		case '\n':
			return true, data[1:], p.headComplete()
		case '\r':
			data = data[1:]
			goto stateHeaderValueCRLFCR
		case ' ', '\t':
			// obsolete line folding. Unfolding it silently is a smuggling hazard,
			// as intermediaries may disagree on the resulting value.
			return true, nil, status.ErrHeaderFolding
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if !headers.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = eHeaderKey
			return false, nil, nil
		}

		if !headers.Append(data[:colon]) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		key := uf.B2S(headers.Finish())
		if !httpchars.IsToken(key) {
			return true, nil, status.ErrBadHeaderName
		}

		p.key = key
		data = data[colon+1:]

		if p.headersNumber++; p.headersNumber > p.cfg.Headers.Number.Maximal {
			return true, nil, status.ErrTooManyHeaders
		}

		// fallthrough to stateHeaderValue
	}

stateHeaderValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if bytes.IndexByte(data, 0x00) != -1 {
				return true, nil, status.ErrBadRequest
			}

			if !headers.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = eHeaderValue
			return false, nil, nil
		}

		if bytes.IndexByte(data[:lf], 0x00) != -1 {
			return true, nil, status.ErrBadRequest
		}

		if !headers.Append(stripCR(data[:lf])) {
			return true, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		value := uf.B2S(trimPrefixSpaces(headers.Finish()))

		if err = p.acceptHeader(p.key, value); err != nil {
			return true, nil, err
		}

		goto stateHeaderKey
	}

stateHeaderValueCRLFCR:
	if len(data) == 0 {
		p.state = eHeaderValueCRLFCR
		return false, nil, nil
	}

	if data[0] == '\n' {
		return true, data[1:], p.headComplete()
	}

	return true, nil, status.ErrBadRequest
}

// acceptHeader stores the header field and interprets the ones the engine
// itself depends on.
func (p *Parser) acceptHeader(key, value string) error {
	request := p.request
	request.Headers.Add(key, value)

	switch len(key) {
	case 6:
		if strutil.CmpFoldFast(key, "Expect") {
			if !strutil.CmpFold(value, "100-continue") {
				return status.ErrExpectationFailed
			}

			request.ExpectsContinue = true
		}
	case 7:
		if strutil.CmpFoldFast(key, "Upgrade") {
			request.Upgrade = value
		}
	case 10:
		if strutil.CmpFoldFast(key, "Connection") {
			request.Connection = value
		}
	case 14:
		if strutil.CmpFoldFast(key, "Content-Length") {
			length, err := parseContentLength(value)
			if err != nil {
				return err
			}

			if p.metContentLength && length != p.contentLength {
				// two different declared lengths. Guessing which one the peer
				// meant is exactly how request smuggling happens.
				return status.ErrConflictingFraming
			}

			p.metContentLength = true
			p.contentLength = length
		}
	case 17:
		if strutil.CmpFoldFast(key, "Transfer-Encoding") {
			if p.metTransferEncoding {
				return status.ErrConflictingFraming
			}

			p.metTransferEncoding = true

			chunked, err := parseTransferEncoding(value)
			if err != nil {
				return err
			}

			request.Chunked = chunked
		}
	}

	return nil
}

// headComplete finalizes the parsed head, ruling on the framing signals seen.
func (p *Parser) headComplete() error {
	request := p.request

	if p.metContentLength && request.Chunked {
		// chunked always wins over a stated length, but a message carrying both
		// is malformed to begin with. Reject before a single body byte is read.
		return status.ErrConflictingFraming
	}

	request.ContentLength = p.contentLength
	p.cleanup()

	return nil
}

func (p *Parser) cleanup() {
	p.headersNumber = 0
	p.contentLength = 0
	p.metContentLength = false
	p.metTransferEncoding = false
	p.startLine.Clear()
	p.headers.Clear()
	p.state = eMethod
}

// Reset drops all the intermediate state, forgetting a partially parsed head.
func (p *Parser) Reset() {
	p.cleanup()
}

func parseContentLength(value string) (length uint64, err error) {
	value = strutil.TrimWS(value)
	if len(value) == 0 {
		return 0, status.ErrBadRequest
	}

	for i := 0; i < len(value); i++ {
		char := value[i]
		if char < '0' || char > '9' {
			return 0, status.ErrBadRequest
		}

		next := length*10 + uint64(char-'0')
		if next < length {
			return 0, status.ErrBodyTooLarge
		}

		length = next
	}

	return length, nil
}

// parseTransferEncoding accepts the sole coding the engine implements: a
// (possibly empty) list whose final element is chunked. Compression codings
// belong to layers above; a message framed with anything else cannot be
// delimited and is therefore rejected.
func parseTransferEncoding(value string) (chunked bool, err error) {
	value = strutil.TrimWS(value)
	if len(value) == 0 {
		return false, nil
	}

	if !strutil.CmpFold(strutil.LastToken(value), "chunked") {
		return false, status.ErrUnsupportedEncoding
	}

	return true, nil
}

func trimPrefixSpaces(b []byte) []byte {
	for i, char := range b {
		if char != ' ' && char != '\t' {
			return b[i:]
		}
	}

	return b[:0]
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}

	return b
}

func isProhibitedChar(c byte) bool {
	return c < 0x21 || c > 0x7e
}
