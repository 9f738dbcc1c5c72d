package http1

import (
	"strings"
	"testing"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/response"
	"github.com/cobalt-web/cobalt/transport/dummy"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, reqMethod method.Method, protocol proto.Protocol, resp *http.Response, keepAlive bool) (wire string, closeConn bool) {
	t.Helper()

	client := dummy.NewNopClient()
	s := NewSerializer(config.Default(), client)

	closeConn, err := s.Write(protocol, reqMethod, resp, keepAlive)
	require.NoError(t, err)

	return string(client.Written()), closeConn
}

func TestSerializer(t *testing.T) {
	t.Run("inline body", func(t *testing.T) {
		resp := http.NewResponse().String("Hello, world!")
		wire, closeConn := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, world!", wire)
		require.False(t, closeConn)
	})

	t.Run("header insertion order is preserved", func(t *testing.T) {
		resp := http.NewResponse().
			Header("B-Second", "2").
			Header("A-First", "1").
			Header("B-Second", "again").
			String("x")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nB-Second: 2\r\nA-First: 1\r\nB-Second: again\r\nContent-Length: 1\r\n\r\nx",
			wire)
	})

	t.Run("custom code and status", func(t *testing.T) {
		resp := http.NewResponse().Code(status.Teapot).Status("I'm a teapot")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 418 I'm a teapot\r\nContent-Length: 0\r\n\r\n", wire)
	})

	t.Run("connection close on keep-alive protocol", func(t *testing.T) {
		resp := http.NewResponse()
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, false)
		require.Contains(t, wire, "Connection: close\r\n")
	})

	t.Run("connection keep-alive on HTTP/1.0", func(t *testing.T) {
		resp := http.NewResponse()
		wire, _ := serialize(t, method.GET, proto.HTTP10, resp, true)
		require.Equal(t, "HTTP/1.0 200 OK\r\nConnection: keep-alive\r\nContent-Length: 0\r\n\r\n", wire)
	})

	t.Run("no connection header on defaults", func(t *testing.T) {
		wire, _ := serialize(t, method.GET, proto.HTTP11, http.NewResponse(), true)
		require.NotContains(t, wire, "Connection:")

		wire, _ = serialize(t, method.GET, proto.HTTP10, http.NewResponse(), false)
		require.NotContains(t, wire, "Connection:")
	})

	t.Run("user connection header wins", func(t *testing.T) {
		resp := http.NewResponse().Header("Connection", "upgrade")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, false)
		require.Contains(t, wire, "Connection: upgrade\r\n")
		require.NotContains(t, wire, "Connection: close")
	})

	t.Run("HEAD transfers no body", func(t *testing.T) {
		resp := http.NewResponse().String("Hello, world!")
		wire, _ := serialize(t, method.HEAD, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\n", wire)
	})

	t.Run("bodyless code transfers no body", func(t *testing.T) {
		resp := http.NewResponse().Code(status.NoContent).String("must vanish")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", wire)
	})

	t.Run("sized stream", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("Hello, world!"), 13)
		wire, closeConn := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, world!", wire)
		require.False(t, closeConn)
	})

	t.Run("sized stream shorter than declared", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("short"), 13)
		client := dummy.NewNopClient()
		s := NewSerializer(config.Default(), client)

		_, err := s.Write(proto.HTTP11, method.GET, resp, true)
		require.Equal(t, status.ErrBodyMismatch, err)
	})

	t.Run("sized stream longer than declared", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("way longer than five"), 5)
		client := dummy.NewNopClient()
		s := NewSerializer(config.Default(), client)

		_, err := s.Write(proto.HTTP11, method.GET, resp, true)
		require.Equal(t, status.ErrBodyMismatch, err)
	})

	t.Run("unsized stream is chunked", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("Hello"), response.UnsizedStream)
		wire, closeConn := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello\r\n0\r\n\r\n", wire)
		require.False(t, closeConn)
	})

	t.Run("unsized stream on HTTP/1.0 is delimited by close", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("Hello"), response.UnsizedStream)
		wire, closeConn := serialize(t, method.GET, proto.HTTP10, resp, false)
		require.Equal(t, "HTTP/1.0 200 OK\r\n\r\nHello", wire)
		require.True(t, closeConn)
	})

	t.Run("trailers force chunked framing", func(t *testing.T) {
		resp := http.NewResponse().
			Trailer("X-Sum", "42").
			String("Hello")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello\r\n0\r\nX-Sum: 42\r\n\r\n",
			wire)
	})

	t.Run("user content length wins", func(t *testing.T) {
		resp := http.NewResponse().Header("Content-Length", "13").String("Hello, world!")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, world!", wire)
	})

	t.Run("interim continue", func(t *testing.T) {
		client := dummy.NewNopClient()
		s := NewSerializer(config.Default(), client)
		require.NoError(t, s.WriteContinue(proto.HTTP11))
		require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", string(client.Written()))
	})

	t.Run("large body crosses the watermark", func(t *testing.T) {
		cfg := config.Default()
		body := strings.Repeat("a", cfg.NET.WriteBufferSize.Maximal*3+17)
		resp := http.NewResponse().String(body)

		client := dummy.NewNopClient()
		s := NewSerializer(cfg, client)
		closeConn, err := s.Write(proto.HTTP11, method.GET, resp, true)
		require.NoError(t, err)
		require.False(t, closeConn)
		require.True(t, strings.HasSuffix(string(client.Written()), body))
	})
}

// A written head fed back through the response parser must come out with the
// identical status line, headers and framing signals.
func TestHeadRoundTrip(t *testing.T) {
	cfg := config.Default()

	t.Run("sized response", func(t *testing.T) {
		resp := http.NewResponse().
			Code(status.Teapot).
			Status("I'm a teapot").
			Header("X-First", "1").
			Header("X-Second", "two").
			String("Hello, world!")
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)

		parser, head := getResponseParser(cfg)
		done, extra, err := feedRespPartially(parser, []byte(wire), 3)
		require.NoError(t, err)
		require.True(t, done)

		require.Equal(t, proto.HTTP11, head.Protocol)
		require.Equal(t, status.Teapot, head.Code)
		require.Equal(t, "I'm a teapot", string(head.Status))
		require.Equal(t, "1", head.Headers.Value("X-First"))
		require.Equal(t, "two", head.Headers.Value("X-Second"))
		require.True(t, head.MetContentLength)
		require.Equal(t, uint64(13), head.ContentLength)
		require.Equal(t, "Hello, world!", string(extra))
	})

	t.Run("unsized stream comes back chunked", func(t *testing.T) {
		resp := http.NewResponse().Stream(strings.NewReader("Hello"), response.UnsizedStream)
		wire, _ := serialize(t, method.GET, proto.HTTP11, resp, true)

		parser, head := getResponseParser(cfg)
		done, extra, err := parser.Parse([]byte(wire))
		require.NoError(t, err)
		require.True(t, done)

		require.Equal(t, status.OK, head.Code)
		require.True(t, head.Chunked)
		require.False(t, head.MetContentLength)
		require.Equal(t, "5\r\nHello\r\n0\r\n\r\n", string(extra))
	})
}
