package client

import (
	"context"
	"strings"
	"testing"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/proto"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/transport/dummy"
	"github.com/stretchr/testify/require"
)

func getConn(responses ...string) (*Conn, *dummy.MockClient) {
	client := dummy.NewMockClient()
	for _, response := range responses {
		client.Feed([]byte(response))
	}

	return New(config.Default(), client), client
}

func TestDo(t *testing.T) {
	t.Run("simple exchange", func(t *testing.T) {
		conn, client := getConn("HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, world!")

		resp, err := conn.Do(context.Background(), NewRequest(method.GET, "/greeting"))
		require.NoError(t, err)
		require.Equal(t, "GET /greeting HTTP/1.1\r\n\r\n", string(client.Written()))
		require.Equal(t, proto.HTTP11, resp.Protocol)
		require.Equal(t, status.OK, resp.Code)
		require.Equal(t, status.Status("OK"), resp.Status)
		require.Equal(t, uint64(13), resp.ContentLength)

		body, err := resp.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", body)

		require.NoError(t, conn.Done())
		require.True(t, conn.Reusable())
	})

	t.Run("request with body", func(t *testing.T) {
		conn, client := getConn("HTTP/1.1 204 No Content\r\n\r\n")

		req := NewRequest(method.POST, "/upload").
			Header("Accept", "text/plain").
			String("Hello")

		_, err := conn.Do(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t,
			"POST /upload HTTP/1.1\r\nAccept: text/plain\r\nContent-Length: 5\r\n\r\nHello",
			string(client.Written()))
	})

	t.Run("chunked request body", func(t *testing.T) {
		conn, client := getConn("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

		req := NewRequest(method.POST, "/upload").
			Stream(strings.NewReader("Hello"), UnsizedBody)

		_, err := conn.Do(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t,
			"POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello\r\n0\r\n\r\n",
			string(client.Written()))
	})

	t.Run("json request body", func(t *testing.T) {
		conn, client := getConn("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

		_, err := conn.Do(context.Background(), NewRequest(method.POST, "/api").JSON(map[string]string{
			"hello": "world",
		}))
		require.NoError(t, err)

		wire := string(client.Written())
		require.Contains(t, wire, "Content-Type: application/json\r\n")
		require.Contains(t, wire, `{"hello":"world"}`)
	})

	t.Run("interim responses are skipped", func(t *testing.T) {
		conn, _ := getConn(
			"HTTP/1.1 100 Continue\r\n\r\n" +
				"HTTP/1.1 102 Processing\r\n\r\n" +
				"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok",
		)

		resp, err := conn.Do(context.Background(), NewRequest(method.POST, "/").String("x"))
		require.NoError(t, err)
		require.Equal(t, status.OK, resp.Code)
	})

	t.Run("101 is delivered and ends HTTP", func(t *testing.T) {
		conn, client := getConn(
			"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\nEXTRA",
		)

		resp, err := conn.Do(context.Background(), NewRequest(method.GET, "/ws"))
		require.NoError(t, err)
		require.Equal(t, status.SwitchingProtocols, resp.Code)
		require.False(t, conn.Reusable())

		transport, err := conn.Hijack()
		require.NoError(t, err)

		leftover, err := transport.Read()
		require.NoError(t, err)
		require.Equal(t, "EXTRA", string(leftover))
		require.False(t, client.Closed())

		_, err = conn.Hijack()
		require.Equal(t, status.ErrProtocolMisuse, err)
	})

	t.Run("close-delimited body", func(t *testing.T) {
		conn, _ := getConn("HTTP/1.1 200 OK\r\n\r\nuntil the very end")

		resp, err := conn.Do(context.Background(), NewRequest(method.GET, "/"))
		require.NoError(t, err)

		body, err := resp.Body.String()
		require.NoError(t, err)
		require.Equal(t, "until the very end", body)
		require.False(t, conn.Reusable())
	})

	t.Run("connection close stops reuse", func(t *testing.T) {
		conn, _ := getConn("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")

		broken := false
		conn.OnBroken = func(*Conn) { broken = true }

		_, err := conn.Do(context.Background(), NewRequest(method.GET, "/"))
		require.NoError(t, err)
		require.False(t, conn.Reusable())

		require.Equal(t, status.ErrCloseConnection, conn.Done())
		require.True(t, broken)
	})

	t.Run("done drains the unread tail", func(t *testing.T) {
		conn, _ := getConn(
			"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nHello",
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi",
		)

		idles := 0
		conn.OnIdle = func(*Conn) { idles++ }

		_, err := conn.Do(context.Background(), NewRequest(method.GET, "/first"))
		require.NoError(t, err)
		require.NoError(t, conn.Done())
		require.Equal(t, 1, idles)

		resp, err := conn.Do(context.Background(), NewRequest(method.GET, "/second"))
		require.NoError(t, err)

		body, err := resp.Body.String()
		require.NoError(t, err)
		require.Equal(t, "hi", body)
	})

	t.Run("truncated response", func(t *testing.T) {
		conn, _ := getConn("HTTP/1.1 200 OK\r\nContent-Le")

		_, err := conn.Do(context.Background(), NewRequest(method.GET, "/"))
		require.Equal(t, status.ErrUnexpectedEOF, err)
		require.False(t, conn.Reusable())
	})

	t.Run("cancelled context", func(t *testing.T) {
		conn, client := getConn()
		broken := false
		conn.OnBroken = func(*Conn) { broken = true }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := conn.Do(ctx, NewRequest(method.GET, "/"))
		require.Equal(t, context.Canceled, err)
		require.True(t, client.Closed())
		require.True(t, broken)
	})

	t.Run("misuse is rejected before any write", func(t *testing.T) {
		for _, req := range []*Request{
			NewRequest(method.Unknown, "/"),
			NewRequest(method.GET, ""),
			{Method: method.POST, Target: "/", Protocol: proto.HTTP10,
				Headers: NewRequest(method.POST, "/").Headers,
				Body:    strings.NewReader("x"), BodySize: UnsizedBody},
		} {
			conn, client := getConn()
			_, err := conn.Do(context.Background(), req)
			require.Equal(t, status.ErrProtocolMisuse, err)
			require.Empty(t, client.Written())
		}
	})

	t.Run("sized body mismatch", func(t *testing.T) {
		conn, _ := getConn()

		req := NewRequest(method.POST, "/").Stream(strings.NewReader("short"), 10)
		_, err := conn.Do(context.Background(), req)
		require.Equal(t, status.ErrBodyMismatch, err)
	})
}

func TestPipeline(t *testing.T) {
	getPipelinedConn := func(responses ...string) (*Conn, *dummy.MockClient) {
		cfg := config.Default()
		cfg.HTTP.PipelineDepth = 4

		client := dummy.NewMockClient()
		for _, response := range responses {
			client.Feed([]byte(response))
		}

		return New(cfg, client), client
	}

	t.Run("responses match requests in order", func(t *testing.T) {
		conn, client := getPipelinedConn(
			"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nfirst" +
				"HTTP/1.1 404 Not Found\r\nContent-Length: 6\r\n\r\nsecond",
		)

		responses, err := conn.Pipeline(context.Background(),
			NewRequest(method.GET, "/1"),
			NewRequest(method.GET, "/2"),
		)
		require.NoError(t, err)
		require.Equal(t,
			"GET /1 HTTP/1.1\r\n\r\nGET /2 HTTP/1.1\r\n\r\n",
			string(client.Written()))
		require.Len(t, responses, 2)

		require.Equal(t, status.OK, responses[0].Code)
		require.Equal(t, status.NotFound, responses[1].Code)

		// detached responses stay readable in any order.
		second, err := responses[1].Body.String()
		require.NoError(t, err)
		require.Equal(t, "second", second)

		first, err := responses[0].Body.String()
		require.NoError(t, err)
		require.Equal(t, "first", first)

		require.True(t, conn.Reusable())
	})

	t.Run("overflow", func(t *testing.T) {
		conn, client := getConn()

		_, err := conn.Pipeline(context.Background(),
			NewRequest(method.GET, "/1"),
			NewRequest(method.GET, "/2"),
		)
		require.Equal(t, status.ErrPipelineOverflow, err)
		require.Empty(t, client.Written())
	})

	t.Run("close mid-batch aborts the rest", func(t *testing.T) {
		conn, _ := getPipelinedConn(
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok",
		)

		responses, err := conn.Pipeline(context.Background(),
			NewRequest(method.GET, "/1"),
			NewRequest(method.GET, "/2"),
		)
		require.Equal(t, status.ErrCloseConnection, err)
		require.Len(t, responses, 1)
		require.Equal(t, status.OK, responses[0].Code)
	})

	t.Run("101 mid-batch is a protocol misuse", func(t *testing.T) {
		conn, _ := getPipelinedConn(
			"HTTP/1.1 101 Switching Protocols\r\nUpgrade: tls\r\n\r\n",
		)

		_, err := conn.Pipeline(context.Background(),
			NewRequest(method.GET, "/1"),
			NewRequest(method.GET, "/2"),
		)
		require.Equal(t, status.ErrProtocolMisuse, err)
	})

	t.Run("empty batch", func(t *testing.T) {
		conn, client := getConn()

		responses, err := conn.Pipeline(context.Background())
		require.NoError(t, err)
		require.Nil(t, responses)
		require.Empty(t, client.Written())
	})
}
