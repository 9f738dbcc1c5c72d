package http1

import (
	"errors"
	"strings"
	"testing"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/buffer"
	"github.com/cobalt-web/cobalt/transport/dummy"
	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
)

func getParser(cfg *config.Config) (*Parser, *http.Request) {
	request := http.NewRequest(http.NewHeaders(), http.NewBody(), dummy.NewNopClient())
	startLine := buffer.New(cfg.URI.StartLineSize.Default, cfg.URI.StartLineSize.Maximal)
	headers := buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal)

	return NewParser(cfg, request, &startLine, &headers), request
}

func splitIntoParts(raw []byte, n int) (parts [][]byte) {
	for i := 0; i < len(raw); i += n {
		end := i + n
		if end > len(raw) {
			end = len(raw)
		}

		parts = append(parts, raw[i:end])
	}

	return parts
}

func feedPartially(p *Parser, raw []byte, n int) (done bool, extra []byte, err error) {
	parts := splitIntoParts(raw, n)

	for i, part := range parts {
		done, extra, err = p.Parse(part)
		if err != nil {
			return done, extra, err
		}
		if done {
			if i+1 < len(parts) {
				return true, extra, errors.New("not all parts were fed")
			}

			break
		}
	}

	return done, extra, err
}

type wantedRequest struct {
	Method   method.Method
	Target   string
	Protocol proto.Protocol
	Headers  map[string][]string
}

func compareRequests(t *testing.T, wanted wantedRequest, actual *http.Request) {
	require.Equal(t, wanted.Method, actual.Method)
	require.Equal(t, wanted.Target, actual.Target)
	require.Equal(t, wanted.Protocol, actual.Protocol)

	for key, values := range wanted.Headers {
		require.Equal(t, values, actual.Headers.Values(key))
	}
}

func TestParser(t *testing.T) {
	cfg := config.Default()

	t.Run("simple GET", func(t *testing.T) {
		parser, request := getParser(cfg)
		done, extra, err := parser.Parse([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)

		compareRequests(t, wantedRequest{
			Method:   method.GET,
			Target:   "/",
			Protocol: proto.HTTP11,
		}, request)
	})

	t.Run("GET with headers", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "GET /greet HTTP/1.1\r\nHello: World!\r\nEaster: Egg\r\n\r\n"
		done, extra, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)

		compareRequests(t, wantedRequest{
			Method:   method.GET,
			Target:   "/greet",
			Protocol: proto.HTTP11,
			Headers: map[string][]string{
				"hello":  {"World!"},
				"easter": {"Egg"},
			},
		}, request)
	})

	t.Run("multiple header values", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "GET / HTTP/1.1\r\nAccept: one,two\r\nAccept: three\r\n\r\n"
		done, _, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, []string{"one,two", "three"}, request.Headers.Values("accept"))
	})

	t.Run("only lf", func(t *testing.T) {
		parser, request := getParser(cfg)
		done, extra, err := parser.Parse([]byte("GET / HTTP/1.1\nHello: World!\n\n"))
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)
		require.Equal(t, "World!", request.Headers.Value("hello"))
	})

	t.Run("fuzz feeding", func(t *testing.T) {
		raw := "POST /where?q=now HTTP/1.1\r\nContent-Length: 5\r\nHello: World!\r\n\r\n"
		parser, request := getParser(cfg)

		for i := 1; i < len(raw); i++ {
			done, extra, err := feedPartially(parser, []byte(raw), i)
			require.NoError(t, err, i)
			require.True(t, done, i)
			require.Empty(t, extra, i)

			compareRequests(t, wantedRequest{
				Method:   method.POST,
				Target:   "/where?q=now",
				Protocol: proto.HTTP11,
				Headers: map[string][]string{
					"hello": {"World!"},
				},
			}, request)
			require.Equal(t, uint64(5), request.ContentLength)
			request.Reset()
			parser.Reset()
		}
	})

	t.Run("content length", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "POST / HTTP/1.1\r\nContent-Length: 13\r\n\r\nHello, world!"
		done, extra, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "Hello, world!", string(extra))
		require.Equal(t, uint64(13), request.ContentLength)
		require.Equal(t, "13", request.Headers.Value("content-length"))
	})

	t.Run("connection and upgrade", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "GET / HTTP/1.1\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"
		done, _, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "Upgrade", request.Connection)
		require.Equal(t, "websocket", request.Upgrade)
	})

	t.Run("transfer encoding chunked", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"
		done, _, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.True(t, request.Chunked)
	})

	t.Run("transfer encoding list ending with chunked", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "POST / HTTP/1.1\r\nTransfer-Encoding: gzip, chunked\r\n\r\n"
		done, _, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.True(t, request.Chunked)
	})

	t.Run("expect continue", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "POST / HTTP/1.1\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n"
		done, _, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.True(t, request.ExpectsContinue)
	})

	t.Run("pipelined requests leave extra", func(t *testing.T) {
		parser, request := getParser(cfg)
		raw := "GET /first HTTP/1.1\r\n\r\nGET /second HTTP/1.1\r\n\r\n"
		done, extra, err := parser.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "/first", request.Target)

		request.Reset()
		done, extra, err = parser.Parse(extra)
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, extra)
		require.Equal(t, "/second", request.Target)
	})
}

func TestParserNegative(t *testing.T) {
	cfg := config.Default()

	parse := func(raw string) error {
		parser, _ := getParser(cfg)
		_, _, err := parser.Parse([]byte(raw))
		return err
	}

	t.Run("unknown method", func(t *testing.T) {
		require.Equal(t, status.ErrMethodNotImplemented, parse("BREW / HTTP/1.1\r\n\r\n"))
	})

	t.Run("empty target", func(t *testing.T) {
		require.Equal(t, status.ErrBadRequest, parse("GET  HTTP/1.1\r\n\r\n"))
	})

	t.Run("control char in target", func(t *testing.T) {
		require.Equal(t, status.ErrBadRequest, parse("GET /\x01 HTTP/1.1\r\n\r\n"))
	})

	t.Run("unsupported protocol", func(t *testing.T) {
		require.Equal(t, status.ErrHTTPVersionNotSupported, parse("GET / HTTP/1.2\r\n\r\n"))
		require.Equal(t, status.ErrHTTPVersionNotSupported, parse("GET / SPDY/1.1\r\n\r\n"))
	})

	t.Run("header folding", func(t *testing.T) {
		err := parse("GET / HTTP/1.1\r\nHello: wor\r\n ld\r\n\r\n")
		require.Equal(t, status.ErrHeaderFolding, err)
	})

	t.Run("bad header name", func(t *testing.T) {
		err := parse("GET / HTTP/1.1\r\nBad Header: value\r\n\r\n")
		require.Equal(t, status.ErrBadHeaderName, err)
	})

	t.Run("NUL in header value", func(t *testing.T) {
		err := parse("GET / HTTP/1.1\r\nHello: wor\x00ld\r\n\r\n")
		require.Equal(t, status.ErrBadRequest, err)
	})

	t.Run("malformed content length", func(t *testing.T) {
		require.Equal(t, status.ErrBadRequest, parse("GET / HTTP/1.1\r\nContent-Length: 13a\r\n\r\n"))
		require.Equal(t, status.ErrBadRequest, parse("GET / HTTP/1.1\r\nContent-Length: -5\r\n\r\n"))
	})

	t.Run("conflicting content lengths", func(t *testing.T) {
		err := parse("GET / HTTP/1.1\r\nContent-Length: 13\r\nContent-Length: 14\r\n\r\n")
		require.Equal(t, status.ErrConflictingFraming, err)
	})

	t.Run("duplicate equal content lengths pass", func(t *testing.T) {
		err := parse("GET / HTTP/1.1\r\nContent-Length: 13\r\nContent-Length: 13\r\n\r\n")
		require.NoError(t, err)
	})

	t.Run("content length alongside chunked", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nContent-Length: 13\r\nTransfer-Encoding: chunked\r\n\r\n")
		require.Equal(t, status.ErrConflictingFraming, err)
	})

	t.Run("double transfer encoding", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\nTransfer-Encoding: chunked\r\n\r\n")
		require.Equal(t, status.ErrConflictingFraming, err)
	})

	t.Run("non-final chunked", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nTransfer-Encoding: chunked, gzip\r\n\r\n")
		require.Equal(t, status.ErrUnsupportedEncoding, err)
	})

	t.Run("unknown expectation", func(t *testing.T) {
		err := parse("POST / HTTP/1.1\r\nExpect: 42-continue\r\n\r\n")
		require.Equal(t, status.ErrExpectationFailed, err)
	})

	t.Run("too long target", func(t *testing.T) {
		target := "/" + strings.Repeat("a", cfg.URI.StartLineSize.Maximal)
		err := parse("GET " + target + " HTTP/1.1\r\n\r\n")
		require.Equal(t, status.ErrURITooLong, err)
	})

	t.Run("too many headers", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("GET / HTTP/1.1\r\n")
		for i := 0; i <= cfg.Headers.Number.Maximal; i++ {
			sb.WriteString("Some-Header-")
			sb.WriteString(uniuri.NewLenChars(4, []byte("abcdefghij")))
			sb.WriteString(": whatever\r\n")
		}
		sb.WriteString("\r\n")

		require.Equal(t, status.ErrTooManyHeaders, parse(sb.String()))
	})

	t.Run("headers section too large", func(t *testing.T) {
		raw := "GET / HTTP/1.1\r\nBig: " +
			strings.Repeat("a", cfg.Headers.Space.Maximal) + "\r\n\r\n"
		require.Equal(t, status.ErrHeaderFieldsTooLarge, parse(raw))
	})
}
