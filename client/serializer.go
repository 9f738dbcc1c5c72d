package client

import (
	"io"
	"strconv"

	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/transport"
)

const crlf = "\r\n"

// serializer renders outbound requests. The head is always assembled in memory
// and written in one piece; the body follows in transport-sized portions.
type serializer struct {
	client     transport.Client
	buff       []byte
	streamBuff []byte
}

func newSerializer(client transport.Client, buffsize int) *serializer {
	return &serializer{
		client:     client,
		buff:       make([]byte, 0, buffsize),
		streamBuff: make([]byte, buffsize),
	}
}

func (s *serializer) Send(req *Request) error {
	if req.err != nil {
		return req.err
	}

	if req.Method == method.Unknown || len(req.Target) == 0 {
		return status.ErrProtocolMisuse
	}

	chunked := req.Body != nil && req.BodySize == UnsizedBody
	if chunked && !req.Protocol.KeepAliveByDefault() {
		// an HTTP/1.0 server would read a chunked body as garbage.
		return status.ErrProtocolMisuse
	}

	s.buff = s.buff[:0]
	s.buff = append(s.buff, req.Method.String()...)
	s.buff = append(s.buff, ' ')
	s.buff = append(s.buff, req.Target...)
	s.buff = append(s.buff, ' ')
	s.buff = append(s.buff, req.Protocol.String()...)
	s.buff = append(s.buff, crlf...)

	userFraming := false

	for _, header := range req.Headers.Expose() {
		s.buff = append(s.buff, header.Key...)
		s.buff = append(s.buff, ':', ' ')
		s.buff = append(s.buff, header.Value...)
		s.buff = append(s.buff, crlf...)

		if strutil.CmpFold(header.Key, "Content-Length") ||
			strutil.CmpFold(header.Key, "Transfer-Encoding") {
			userFraming = true
		}
	}

	if !userFraming {
		switch {
		case chunked:
			s.buff = append(s.buff, "Transfer-Encoding: chunked"+crlf...)
		case req.Body != nil:
			s.buff = append(s.buff, "Content-Length: "...)
			s.buff = strconv.AppendInt(s.buff, req.BodySize, 10)
			s.buff = append(s.buff, crlf...)
		}
	}

	s.buff = append(s.buff, crlf...)

	if err := s.client.Write(s.buff); err != nil {
		return err
	}

	if req.Body == nil {
		return nil
	}

	if chunked {
		return s.sendChunked(req.Body)
	}

	return s.sendSized(req.Body, req.BodySize)
}

func (s *serializer) sendSized(body io.Reader, size int64) error {
	var transferred int64

	for {
		n, err := body.Read(s.streamBuff)
		transferred += int64(n)

		if transferred > size {
			return status.ErrBodyMismatch
		}

		if n > 0 {
			if werr := s.client.Write(s.streamBuff[:n]); werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			if transferred != size {
				return status.ErrBodyMismatch
			}

			return nil
		default:
			return err
		}
	}
}

func (s *serializer) sendChunked(body io.Reader) error {
	for {
		n, err := body.Read(s.streamBuff)

		if n > 0 {
			s.buff = s.buff[:0]
			s.buff = strconv.AppendUint(s.buff, uint64(n), 16)
			s.buff = append(s.buff, crlf...)
			s.buff = append(s.buff, s.streamBuff[:n]...)
			s.buff = append(s.buff, crlf...)

			if werr := s.client.Write(s.buff); werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return s.client.Write([]byte("0" + crlf + crlf))
		default:
			return err
		}
	}
}
