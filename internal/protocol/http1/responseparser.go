package http1

import (
	"bytes"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/buffer"
	"github.com/cobalt-web/cobalt/internal/httpchars"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/kv"
	"github.com/indigo-web/utils/uf"
)

// ResponseHead is a parsed response status line and header section, together
// with the framing signals interpreted out of it.
type ResponseHead struct {
	Protocol proto.Protocol
	Code     status.Code
	Status   status.Status
	Headers  *kv.Storage

	ContentLength    uint64
	MetContentLength bool
	Chunked          bool
	Connection       string
	Upgrade          string
}

// Reset prepares the head for the next exchange.
func (r *ResponseHead) Reset() {
	r.Protocol = proto.Unknown
	r.Code = 0
	r.Status = ""
	r.Headers.Clear()
	r.ContentLength = 0
	r.MetContentLength = false
	r.Chunked = false
	r.Connection = ""
	r.Upgrade = ""
}

type respParserState uint8

const (
	rProtocol respParserState = iota + 1
	rCode
	rStatus
	rHeaderKey
	rHeaderValue
	rHeaderValueCRLFCR
)

// ResponseParser is the client-role twin of Parser: a resumable response-head
// parser with the same feeding contract. Head strings are views into the
// parser's buffers and stay valid until the next head is parsed.
type ResponseParser struct {
	cfg           *config.Config
	head          *ResponseHead
	statusLine    *buffer.Buffer
	headers       *buffer.Buffer
	key           string
	state         respParserState
	codeDigits    int
	headersNumber int
}

func NewResponseParser(cfg *config.Config, head *ResponseHead, statusLine, headers *buffer.Buffer) *ResponseParser {
	return &ResponseParser{
		cfg:        cfg,
		head:       head,
		statusLine: statusLine,
		headers:    headers,
		state:      rProtocol,
	}
}

// Parse processes the next portion of the stream. When done is reported, the
// head is fully populated and extra holds the bytes past it, belonging to the
// body or to the next pipelined response.
func (p *ResponseParser) Parse(data []byte) (done bool, extra []byte, err error) {
	head := p.head
	statusLine := p.statusLine
	headers := p.headers

	switch p.state {
	case rProtocol:
		goto stateProtocol
	case rCode:
		goto stateCode
	case rStatus:
		goto stateStatus
	case rHeaderKey:
		goto stateHeaderKey
	case rHeaderValue:
		goto stateHeaderValue
	case rHeaderValueCRLFCR:
		goto stateHeaderValueCRLFCR
	default:
		panic("unreachable code")
	}

stateProtocol:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if !statusLine.Append(data) {
				return true, nil, status.ErrBadStatusLine
			}

			p.state = rProtocol
			return false, nil, nil
		}

		var protocol proto.Protocol
		if statusLine.SegmentLength() == 0 {
			protocol = proto.FromBytes(data[:sp])
		} else {
			if !statusLine.Append(data[:sp]) {
				return true, nil, status.ErrBadStatusLine
			}

			protocol = proto.FromBytes(statusLine.Preview())
			statusLine.Discard(0)
		}

		if protocol == proto.Unknown {
			return true, nil, status.ErrHTTPVersionNotSupported
		}

		head.Protocol = protocol
		data = data[sp+1:]
		// fallthrough to stateCode
	}

stateCode:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; {
		case char >= '0' && char <= '9':
			if p.codeDigits++; p.codeDigits > 3 {
				return true, nil, status.ErrBadStatusLine
			}

			head.Code = head.Code*10 + status.Code(char-'0')
		case char == ' ':
			if p.codeDigits != 3 {
				return true, nil, status.ErrBadStatusLine
			}

			data = data[i+1:]
			goto stateStatus
		case char == '\r', char == '\n':
			// a status line with no reason phrase at all.
			if p.codeDigits != 3 {
				return true, nil, status.ErrBadStatusLine
			}

			data = data[i:]
			goto stateStatus
		default:
			return true, nil, status.ErrBadStatusLine
		}
	}

	p.state = rCode
	return false, nil, nil

stateStatus:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !statusLine.Append(data) {
				return true, nil, status.ErrBadStatusLine
			}

			p.state = rStatus
			return false, nil, nil
		}

		if !statusLine.Append(stripCR(data[:lf])) {
			return true, nil, status.ErrBadStatusLine
		}

		head.Status = status.Status(uf.B2S(statusLine.Finish()))
		data = data[lf+1:]
		// fallthrough to stateHeaderKey
	}

stateHeaderKey:
	{
		if len(data) == 0 {
			p.state = rHeaderKey
			return false, nil, nil
		}

		switch data[0] {
		case '\n':
			return true, data[1:], p.headComplete()
		case '\r':
			data = data[1:]
			goto stateHeaderValueCRLFCR
		case ' ', '\t':
			return true, nil, status.ErrHeaderFolding
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if !headers.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = rHeaderKey
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
				return true, nil, status.ErrBadStatusLine
			}

			if !headers.Append(data) {
				return true, nil, status.ErrHeaderFieldsTooLarge
			}

			p.state = rHeaderValue
			return false, nil, nil
		}

		if bytes.IndexByte(data[:lf], 0x00) != -1 {
			return true, nil, status.ErrBadStatusLine
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
		p.state = rHeaderValueCRLFCR
		return false, nil, nil
	}

	if data[0] == '\n' {
		return true, data[1:], p.headComplete()
	}

	return true, nil, status.ErrBadStatusLine
}

// headComplete finalizes the parsed head, ruling on the framing signals seen.
func (p *ResponseParser) headComplete() error {
	if p.head.MetContentLength && p.head.Chunked {
		// chunked always wins over a stated length, but a message carrying both
		// is malformed to begin with. Reject before a single body byte is read.
		return status.ErrConflictingFraming
	}

	p.cleanup()

	return nil
}

func (p *ResponseParser) cleanup() {
	p.codeDigits = 0
	p.headersNumber = 0
	p.statusLine.Clear()
	p.headers.Clear()
	p.state = rProtocol
}

func (p *ResponseParser) acceptHeader(key, value string) error {
	head := p.head
	head.Headers.Add(key, value)

	switch len(key) {
	case 7:
		if strutil.CmpFoldFast(key, "Upgrade") {
			head.Upgrade = value
		}
	case 10:
		if strutil.CmpFoldFast(key, "Connection") {
			head.Connection = value
		}
	case 14:
		if strutil.CmpFoldFast(key, "Content-Length") {
			length, err := parseContentLength(value)
			if err != nil {
				return err
			}

			if head.MetContentLength && length != head.ContentLength {
				return status.ErrConflictingFraming
			}

			head.ContentLength = length
			head.MetContentLength = true
		}
	case 17:
		if strutil.CmpFoldFast(key, "Transfer-Encoding") {
			if head.Chunked {
				return status.ErrConflictingFraming
			}

			chunked, err := parseTransferEncoding(value)
			if err != nil {
				return err
			}

			head.Chunked = chunked
		}
	}

	return nil
}

// Reset drops all the intermediate state, forgetting a partially parsed head.
// The head itself is reset separately by its owner.
func (p *ResponseParser) Reset() {
	p.cleanup()
}
