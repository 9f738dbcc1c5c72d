package http1

import (
	"io"
	"strconv"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/response"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/kv"
	"github.com/cobalt-web/cobalt/transport"
)

const crlf = "\r\n"

// Serializer renders response heads and bodies into a bounded write buffer,
// flushing it to the transport as it fills. The buffer never grows past the
// configured watermark: bigger bodies simply take more flushes, which is also
// the engine's write-side backpressure point, as the next body frame is pulled
// only once the previous one left the buffer.
type Serializer struct {
	cfg            *config.Config
	client         transport.Client
	buff           []byte
	streamReadBuff []byte
}

func NewSerializer(cfg *config.Config, client transport.Client) *Serializer {
	return &Serializer{
		cfg:    cfg,
		client: client,
		buff:   make([]byte, 0, cfg.NET.WriteBufferSize.Default),
	}
}

// WriteContinue emits the 100 Continue interim response.
func (s *Serializer) WriteContinue(protocol proto.Protocol) error {
	s.buff = append(s.buff, protocol.String()...)
	s.buff = append(s.buff, " 100 Continue"+crlf+crlf...)

	return s.flush()
}

// Write serializes a complete response. The request method and protocol drive
// framing decisions: HEAD responses carry headers only, HTTP/1.0 peers cannot
// accept chunked framing, and so on. closeConn is reported when the response
// framing poisoned the connection for further exchanges, which the state
// machine folds into its keep-alive decision.
func (s *Serializer) Write(
	protocol proto.Protocol,
	reqMethod method.Method,
	resp *http.Response,
	keepAlive bool,
) (closeConn bool, err error) {
	fields := resp.Expose()

	s.appendProtocol(protocol)
	s.appendStatus(fields)

	userFraming := s.appendHeaders(fields, protocol, keepAlive)

	switch {
	case reqMethod == method.HEAD || fields.Code.Bodyless():
		// announce the length the GET twin would carry, but transfer nothing.
		if size := bodySize(fields); !userFraming && !fields.Code.Bodyless() && size >= 0 {
			s.appendContentLength(size)
		}

		s.crlf()
		err = s.flush()
	case fields.Stream != nil && fields.StreamSize == response.UnsizedStream,
		len(fields.Trailers) > 0:
		closeConn, err = s.writeUnsized(protocol, fields, userFraming)
	case fields.Stream != nil:
		err = s.writeSizedStream(fields, userFraming)
	default:
		err = s.writeInline(fields, userFraming)
	}

	if err != nil {
		return true, err
	}

	return closeConn, nil
}

// writeInline transfers an in-memory body.
func (s *Serializer) writeInline(fields *response.Fields, userFraming bool) error {
	if !userFraming {
		s.appendContentLength(int64(len(fields.Body)))
	}

	s.crlf()

	if err := s.safeAppend(fields.Body); err != nil {
		return err
	}

	return s.flush()
}

// writeSizedStream transfers a stream of a known size, verifying the promise:
// the declared byte count already hit the wire in the Content-Length header, so
// a mismatching stream is a fatal framing error, not something to paper over.
func (s *Serializer) writeSizedStream(fields *response.Fields, userFraming bool) error {
	if !userFraming {
		s.appendContentLength(fields.StreamSize)
	}

	s.crlf()

	var transferred int64

	for {
		data, err := s.readStream(fields.Stream)
		transferred += int64(len(data))

		if transferred > fields.StreamSize {
			return status.ErrBodyMismatch
		}

		if aerr := s.safeAppend(data); aerr != nil {
			return aerr
		}

		switch err {
		case nil:
		case io.EOF:
			if transferred != fields.StreamSize {
				return status.ErrBodyMismatch
			}

			return s.flush()
		default:
			return err
		}
	}
}

// writeUnsized transfers a body of unknown length: chunked for HTTP/1.1 peers,
// delimited by connection close for HTTP/1.0 ones.
func (s *Serializer) writeUnsized(
	protocol proto.Protocol, fields *response.Fields, userFraming bool,
) (closeConn bool, err error) {
	if protocol == proto.HTTP10 {
		// an HTTP/1.0 peer knows nothing about chunked framing. The only length
		// delimiter left is the connection close itself; trailers are lost.
		s.crlf()

		if err = s.streamPlain(fields); err != nil {
			return true, err
		}

		return true, s.flush()
	}

	if !userFraming {
		s.appendKnownHeader("Transfer-Encoding: ", "chunked")
	}

	s.crlf()

	if err = s.streamChunked(fields); err != nil {
		return true, err
	}

	return false, s.flush()
}

func (s *Serializer) streamPlain(fields *response.Fields) error {
	if fields.Stream == nil {
		return s.safeAppend(fields.Body)
	}

	for {
		data, err := s.readStream(fields.Stream)

		if aerr := s.safeAppend(data); aerr != nil {
			return aerr
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

func (s *Serializer) streamChunked(fields *response.Fields) error {
	if fields.Stream == nil {
		if err := s.appendChunk(fields.Body); err != nil {
			return err
		}

		return s.appendLastChunk(fields.Trailers)
	}

	for {
		data, err := s.readStream(fields.Stream)

		if cerr := s.appendChunk(data); cerr != nil {
			return cerr
		}

		switch err {
		case nil:
		case io.EOF:
			return s.appendLastChunk(fields.Trailers)
		default:
			return err
		}
	}
}

// appendChunk writes a single sized chunk. Empty input writes nothing: a
// zero-size chunk terminates the body and must never be produced mid-stream.
func (s *Serializer) appendChunk(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.buff = strconv.AppendUint(s.buff, uint64(len(data)), 16)
	s.crlf()

	if err := s.safeAppend(data); err != nil {
		return err
	}

	s.crlf()

	return nil
}

func (s *Serializer) appendLastChunk(trailers []kv.Pair) error {
	s.buff = append(s.buff, '0')
	s.crlf()

	for _, trailer := range trailers {
		s.buff = append(s.buff, trailer.Key...)
		s.colonsp()
		s.buff = append(s.buff, trailer.Value...)
		s.crlf()
	}

	s.crlf()

	return nil
}

func (s *Serializer) readStream(stream io.Reader) ([]byte, error) {
	if cap(s.streamReadBuff) == 0 {
		s.streamReadBuff = make([]byte, s.cfg.NET.WriteBufferSize.Default)
	}

	buff := s.streamReadBuff[:cap(s.streamReadBuff)]
	n, err := stream.Read(buff)

	return buff[:n], err
}

// appendHeaders writes the user's headers verbatim in insertion order and the
// engine's Connection header unless the user already stated one. userFraming
// is reported when the user took framing into their own hands by setting
// Content-Length or Transfer-Encoding themselves.
func (s *Serializer) appendHeaders(
	fields *response.Fields, protocol proto.Protocol, keepAlive bool,
) (userFraming bool) {
	metConnection := false

	for _, header := range fields.Headers {
		s.buff = append(s.buff, header.Key...)
		s.colonsp()
		s.buff = append(s.buff, header.Value...)
		s.crlf()

		switch len(header.Key) {
		case 10:
			if strutil.CmpFoldFast(header.Key, "Connection") {
				metConnection = true
			}
		case 14:
			if strutil.CmpFoldFast(header.Key, "Content-Length") {
				userFraming = true
			}
		case 17:
			if strutil.CmpFoldFast(header.Key, "Transfer-Encoding") {
				userFraming = true
			}
		}
	}

	if !metConnection {
		switch {
		case !keepAlive && protocol.KeepAliveByDefault():
			s.appendKnownHeader("Connection: ", "close")
		case keepAlive && !protocol.KeepAliveByDefault():
			s.appendKnownHeader("Connection: ", "keep-alive")
		}
	}

	return userFraming
}

func (s *Serializer) appendStatus(fields *response.Fields) {
	s.buff = strconv.AppendUint(s.buff, uint64(fields.Code), 10)
	s.sp()

	statusText := fields.Status
	if len(statusText) == 0 {
		statusText = status.FromCode(fields.Code)
	}

	s.buff = append(s.buff, statusText...)
	s.crlf()
}

func (s *Serializer) appendContentLength(value int64) {
	s.buff = append(s.buff, "Content-Length: "...)
	s.buff = strconv.AppendInt(s.buff, value, 10)
	s.crlf()
}

func (s *Serializer) appendKnownHeader(key, value string) {
	s.buff = append(s.buff, key...)
	s.buff = append(s.buff, value...)
	s.crlf()
}

func (s *Serializer) appendProtocol(protocol proto.Protocol) {
	if protocol == proto.Unknown {
		// the parser may have failed before reaching the protocol token. Answer
		// with the most probable one.
		protocol = proto.HTTP11
	}

	s.buff = append(s.buff, protocol.String()...)
	s.sp()
}

// safeAppend appends data into the bounded buffer, flushing on the way every
// time the watermark is crossed.
func (s *Serializer) safeAppend(data []byte) error {
	for len(data) > 0 {
		if cap(s.buff) < s.cfg.NET.WriteBufferSize.Maximal && len(s.buff)+len(data) > cap(s.buff) {
			grown := min(s.cfg.NET.WriteBufferSize.Maximal, max(2*cap(s.buff), len(s.buff)+len(data)))
			newBuff := make([]byte, len(s.buff), grown)
			copy(newBuff, s.buff)
			s.buff = newBuff
		}

		freeSpace := cap(s.buff) - len(s.buff)
		if len(data) <= freeSpace {
			s.buff = append(s.buff, data...)
			return nil
		}

		s.buff = append(s.buff, data[:freeSpace]...)
		if err := s.flush(); err != nil {
			return err
		}

		data = data[freeSpace:]
	}

	return nil
}

func (s *Serializer) flush() (err error) {
	if len(s.buff) > 0 {
		err = s.client.Write(s.buff)
		s.buff = s.buff[:0]
	}

	return err
}

func (s *Serializer) sp() {
	s.buff = append(s.buff, ' ')
}

func (s *Serializer) colonsp() {
	s.buff = append(s.buff, ':', ' ')
}

func (s *Serializer) crlf() {
	s.buff = append(s.buff, crlf...)
}

func bodySize(fields *response.Fields) int64 {
	if fields.Stream != nil {
		return fields.StreamSize
	}

	return int64(len(fields.Body))
}
