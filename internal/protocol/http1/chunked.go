package http1

import (
	"bytes"
	"io"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/hexconv"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/kv"
)

type chunkedParserState uint8

const (
	eChunkLength chunkedParserState = iota + 1
	eChunkExt
	eChunkLengthCR
	eChunkBody
	eChunkBodyDone
	eChunkBodyCRLF
	eChunkTrailer
	eChunkTrailerCRLF
	eChunkTrailerFieldLine
)

// chunkedParser is a resumable decoder of the chunked transfer coding. Parse
// returns the next data chunk when one (or a part of one) is available, nil
// when more bytes are needed, and io.EOF once the terminating zero chunk along
// with its optional trailer section was consumed. A chunk split across buffer
// boundaries is delivered in parts, never erred on.
type chunkedParser struct {
	state        chunkedParserState
	chunkLength  uint64
	maxChunkSize uint64
	trailerBuff  []byte
	trailerSpace int
	trailers     *kv.Storage
}

func newChunkedParser(cfg config.Body) chunkedParser {
	return chunkedParser{
		state:        eChunkLength,
		maxChunkSize: cfg.MaxChunkSize,
		trailerSpace: cfg.TrailerSpace,
	}
}

// Trailers returns the trailer fields of the decoded body, nil if there were
// none. Valid only after Parse reported io.EOF.
func (c *chunkedParser) Trailers() *kv.Storage {
	return c.trailers
}

func (c *chunkedParser) reset() {
	c.state = eChunkLength
	c.chunkLength = 0
	c.trailerBuff = c.trailerBuff[:0]
	c.trailers = nil
}

func (c *chunkedParser) Parse(data []byte) (chunk, extra []byte, err error) {
	switch c.state {
	case eChunkLength:
		goto chunkLength
	case eChunkExt:
		goto chunkExt
	case eChunkLengthCR:
		goto chunkLengthCR
	case eChunkBody:
		goto chunkBody
	case eChunkBodyDone:
		goto chunkBodyDone
	case eChunkBodyCRLF:
		goto chunkBodyCRLF
	case eChunkTrailer:
		goto trailer
	case eChunkTrailerCRLF:
		goto chunkTrailerCRLF
	case eChunkTrailerFieldLine:
		goto chunkTrailerFieldLine
	default:
		panic("unreachable code")
	}

chunkLength:
	for i := 0; i < len(data); i++ {
		switch char := data[i]; char {
		case '\r':
			data = data[i+1:]
			goto chunkLengthCR
		case '\n':
			data = data[i+1:]
			goto chunkLengthLF
		case ';':
			data = data[i+1:]
			goto chunkExt
		default:
			halfbyte := hexconv.Halfbyte[char]
			if halfbyte == 0xFF {
				return nil, nil, status.ErrBadChunk
			}

			c.chunkLength = (c.chunkLength << 4) | uint64(halfbyte)
			if c.chunkLength > c.maxChunkSize {
				return nil, nil, status.ErrChunkTooLarge
			}
		}
	}

	c.state = eChunkLength
	return nil, nil, nil

chunkExt:
	{
		// chunk extensions carry no information anybody ever needed; skipped.
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			c.state = eChunkExt
			return nil, nil, nil
		}

		data = data[boundary+1:]
		goto chunkLengthLF
	}

chunkLengthCR:
	if len(data) == 0 {
		c.state = eChunkLengthCR
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	// fallthrough to chunkLengthLF

chunkLengthLF:
	if c.chunkLength == 0 {
		goto trailer
	}

	// fallthrough to chunkBody

chunkBody:
	{
		if len(data) == 0 {
			c.state = eChunkBody
			return nil, nil, nil
		}

		n := min(c.chunkLength, uint64(len(data)))
		c.chunkLength -= n
		chunk = data[:n]

		if c.chunkLength == 0 {
			c.state = eChunkBodyDone
		} else {
			c.state = eChunkBody
		}

		return chunk, data[n:], nil
	}

chunkBodyDone:
	if len(data) == 0 {
		c.state = eChunkBodyDone
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkBodyCRLF
	case '\n':
		data = data[1:]
		goto chunkLength
	default:
		return nil, nil, status.ErrBadChunk
	}

chunkBodyCRLF:
	if len(data) == 0 {
		c.state = eChunkBodyCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	data = data[1:]
	goto chunkLength

trailer:
	if len(data) == 0 {
		c.state = eChunkTrailer
		return nil, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		goto chunkTrailerCRLF
	case '\n':
		return nil, data[1:], c.finish()
	default:
		goto chunkTrailerFieldLine
	}

chunkTrailerCRLF:
	if len(data) == 0 {
		c.state = eChunkTrailerCRLF
		return nil, nil, nil
	}

	if data[0] != '\n' {
		return nil, nil, status.ErrBadChunk
	}

	return nil, data[1:], c.finish()

chunkTrailerFieldLine:
	{
		boundary := bytes.IndexByte(data, '\n')
		if boundary == -1 {
			if !c.bufferTrailer(data) {
				return nil, nil, status.ErrHeaderFieldsTooLarge
			}

			c.state = eChunkTrailerFieldLine
			return nil, nil, nil
		}

		if !c.bufferTrailer(data[:boundary+1]) {
			return nil, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[boundary+1:]
		goto trailer
	}
}

func (c *chunkedParser) bufferTrailer(data []byte) (fits bool) {
	if len(c.trailerBuff)+len(data) > c.trailerSpace {
		return false
	}

	c.trailerBuff = append(c.trailerBuff, data...)
	return true
}

// finish parses the buffered trailer section, arming Trailers, and resets the
// parser for the next body.
func (c *chunkedParser) finish() error {
	defer func() {
		c.state = eChunkLength
		c.chunkLength = 0
		c.trailerBuff = c.trailerBuff[:0]
	}()

	if len(c.trailerBuff) == 0 {
		c.trailers = nil
		return io.EOF
	}

	trailers := kv.New()
	rest := c.trailerBuff

	for len(rest) > 0 {
		var line []byte

		lf := bytes.IndexByte(rest, '\n')
		if lf == -1 {
			line, rest = rest, nil
		} else {
			line, rest = rest[:lf], rest[lf+1:]
		}

		line = stripCR(line)
		if len(line) == 0 {
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			return status.ErrBadChunk
		}

		// the trailer buffer is re-used across bodies, so both the key and the
		// value must be detached copies.
		key := string(line[:colon])
		value := strutil.TrimWS(string(line[colon+1:]))
		trailers.Add(key, value)
	}

	c.trailers = trailers

	return io.EOF
}
