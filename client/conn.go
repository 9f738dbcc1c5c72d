package client

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/method"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/buffer"
	"github.com/cobalt-web/cobalt/internal/protocol/http1"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/kv"
	"github.com/cobalt-web/cobalt/transport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Conn drives the client side of a single HTTP/1.x connection. It owns the
// transport handed to it and is not safe for concurrent use: connection
// pooling and checkout discipline belong a layer above, which may subscribe to
// the OnIdle and OnBroken events for its bookkeeping.
type Conn struct {
	// OnIdle fires when an exchange fully completes leaving the connection
	// ready for the next one. OnBroken fires once, when the connection becomes
	// unusable for any reason, voluntary close included. Set before first use.
	OnIdle   func(*Conn)
	OnBroken func(*Conn)

	cfg        *config.Config
	client     transport.Client
	parser     *http1.ResponseParser
	serializer *serializer
	head       *http1.ResponseHead
	body       *http1.Body
	respBody   *http.Body
	response   *Response

	statusLine  buffer.Buffer
	headersBuff buffer.Buffer

	armed    bool
	reusable bool
	hijacked bool
	closed   atomic.Bool
}

// New wraps an established transport. The config is read-only and may be
// shared between connections.
func New(cfg *config.Config, client transport.Client) *Conn {
	c := &Conn{
		cfg:        cfg,
		client:     client,
		serializer: newSerializer(client, cfg.NET.WriteBufferSize.Default),
		head: &http1.ResponseHead{
			Headers: kv.NewPrealloc(cfg.Headers.Number.Default),
		},
		body:        http1.NewBody(client, cfg.Body),
		respBody:    http.NewBody(),
		response:    new(Response),
		statusLine:  buffer.New(cfg.URI.StartLineSize.Default, cfg.URI.StartLineSize.Maximal),
		headersBuff: buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal),
		reusable:    true,
	}
	c.parser = http1.NewResponseParser(cfg, c.head, &c.statusLine, &c.headersBuff)

	return c
}

// Dial establishes a plain TCP connection to the address and wraps it.
func Dial(cfg *config.Config, network, addr string) (*Conn, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}

	client := transport.NewClient(conn, cfg.NET.ReadTimeout, make([]byte, cfg.NET.ReadBufferSize))

	return New(cfg, client), nil
}

// Do sends the request and reads its response. Interim 1xx responses other
// than 101 are consumed silently. The returned response is owned by the
// connection: its head and body are valid until the next exchange.
//
// Cancelling the context mid-exchange closes the connection, as an HTTP/1.x
// exchange cannot be abandoned in any cheaper way. Cancelling after Do
// returned has no effect.
func (c *Conn) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.checkout(); err != nil {
		return nil, err
	}

	stop := c.watch(ctx)
	defer stop()

	if err := c.serializer.Send(req); err != nil {
		return nil, c.broke(cause(ctx, err))
	}

	if err := c.nextFinalHead(); err != nil {
		return nil, c.broke(cause(ctx, err))
	}

	if err := c.armResponse(req.Method); err != nil {
		return nil, c.broke(cause(ctx, err))
	}

	return c.response, nil
}

// Pipeline sends all the requests back to back and reads their responses,
// matched to requests strictly in send order. Response bodies are buffered in
// full, so the returned responses are detached and may be retained.
//
// The batch size is capped by config.HTTP.PipelineDepth. A response that kills
// keep-alive mid-batch aborts the rest: already received responses are
// returned alongside the error.
func (c *Conn) Pipeline(ctx context.Context, reqs ...*Request) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	if len(reqs) > c.cfg.HTTP.PipelineDepth {
		return nil, status.ErrPipelineOverflow
	}

	if err := c.checkout(); err != nil {
		return nil, err
	}

	stop := c.watch(ctx)
	defer stop()

	for _, req := range reqs {
		if err := c.serializer.Send(req); err != nil {
			return nil, c.broke(cause(ctx, err))
		}
	}

	responses := make([]*Response, 0, len(reqs))

	for i, req := range reqs {
		if err := c.nextFinalHead(); err != nil {
			return responses, c.broke(cause(ctx, err))
		}

		if err := c.armResponse(req.Method); err != nil {
			return responses, c.broke(cause(ctx, err))
		}

		if c.head.Code == status.SwitchingProtocols && i != len(reqs)-1 {
			// the server switched protocols while more responses were owed.
			// Nothing on the stream can be trusted anymore.
			return responses, c.broke(status.ErrProtocolMisuse)
		}

		resp, err := c.detachResponse()
		if err != nil {
			return responses, c.broke(cause(ctx, err))
		}

		responses = append(responses, resp)

		if !c.reusable && i != len(reqs)-1 {
			return responses, c.broke(status.ErrCloseConnection)
		}
	}

	return responses, nil
}

// Done finishes the current exchange: whatever tail of the response body was
// left unread is drained off the wire, restoring the connection for the next
// exchange. Reports the idle event when the connection stays usable.
func (c *Conn) Done() error {
	if c.closed.Load() || c.hijacked {
		return status.ErrProtocolMisuse
	}

	if err := c.drain(); err != nil {
		return c.broke(err)
	}

	if !c.reusable {
		return c.broke(status.ErrCloseConnection)
	}

	if c.OnIdle != nil {
		c.OnIdle(c)
	}

	return nil
}

// Reusable reports whether the connection may carry another exchange.
func (c *Conn) Reusable() bool {
	return c.reusable && !c.closed.Load() && !c.hijacked
}

// Hijack takes the underlying transport away, normally right after a 101
// response or a successful CONNECT. The connection never touches the stream
// again; a second hijack attempt fails.
func (c *Conn) Hijack() (transport.Client, error) {
	if c.hijacked || c.closed.Load() {
		return nil, status.ErrProtocolMisuse
	}

	c.hijacked = true
	c.reusable = false

	return c.client, nil
}

// Close tears the connection down. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	err := c.client.Close()

	if c.OnBroken != nil {
		c.OnBroken(c)
	}

	return err
}

// checkout verifies the connection is ready for a new exchange and drains the
// leftovers of the previous one.
func (c *Conn) checkout() error {
	if c.closed.Load() || c.hijacked {
		return status.ErrProtocolMisuse
	}

	if c.armed && !c.reusable {
		return status.ErrProtocolMisuse
	}

	if err := c.drain(); err != nil {
		return c.broke(err)
	}

	return nil
}

func (c *Conn) drain() error {
	if !c.armed || c.body.Fully() {
		return nil
	}

	return c.respBody.Discard()
}

// nextFinalHead parses response heads until a non-interim one arrives. 101 is
// technically interim but is delivered: it terminates HTTP on the connection.
func (c *Conn) nextFinalHead() error {
	for {
		if err := c.readHead(); err != nil {
			return err
		}

		if c.head.Code.Informational() && c.head.Code != status.SwitchingProtocols {
			continue
		}

		return nil
	}
}

func (c *Conn) readHead() error {
	c.head.Reset()

	for {
		data, err := c.client.Read()
		if err != nil {
			if err == io.EOF {
				err = status.ErrUnexpectedEOF
			}

			return err
		}

		done, extra, err := c.parser.Parse(data)
		if err != nil {
			return err
		}

		if done {
			c.client.Unread(extra)
			return nil
		}
	}
}

// armResponse resolves the body framing out of the parsed head and fills the
// connection-owned response.
func (c *Conn) armResponse(reqMethod method.Method) error {
	head := c.head

	framing, err := http1.ResolveResponse(
		reqMethod, head.Code, head.Chunked, head.MetContentLength, head.ContentLength, c.cfg.Body,
	)
	if err != nil {
		return err
	}

	c.body.Reset(framing)
	c.respBody.Reset(c.body)
	c.armed = true

	*c.response = Response{
		Protocol:      head.Protocol,
		Code:          head.Code,
		Status:        head.Status,
		Headers:       head.Headers,
		ContentLength: head.ContentLength,
		Chunked:       head.Chunked,
		Body:          c.respBody,
	}

	c.reusable = c.keepAlive(framing) && head.Code != status.SwitchingProtocols

	return nil
}

func (c *Conn) keepAlive(framing http1.BodyFraming) bool {
	if framing.ForcesClose() {
		return false
	}

	switch conn := c.head.Connection; {
	case strutil.HasToken(conn, "close"):
		return false
	case strutil.HasToken(conn, "keep-alive"):
		return true
	default:
		return c.head.Protocol.KeepAliveByDefault()
	}
}

// detachResponse deep-copies the connection-owned response, buffering its body
// in full. Every string is cloned: the originals are views into parser buffers
// which the next exchange overwrites.
func (c *Conn) detachResponse() (*Response, error) {
	data, err := c.respBody.Bytes()
	if err != nil {
		return nil, err
	}

	hint, sized := c.body.LengthHint()

	var trailers *kv.Storage
	if t := c.respBody.Trailers(); t != nil && !t.Empty() {
		trailers = t.Clone()
	}

	headers := kv.NewPrealloc(c.head.Headers.Len())
	for key, value := range c.head.Headers.Iter() {
		headers.Add(strings.Clone(key), strings.Clone(value))
	}

	body := http.NewBody()
	body.Reset(http1.NewMemoryBody(append([]byte(nil), data...), hint, sized, trailers))

	return &Response{
		Protocol:      c.head.Protocol,
		Code:          c.head.Code,
		Status:        status.Status(strings.Clone(string(c.head.Status))),
		Headers:       headers,
		ContentLength: c.head.ContentLength,
		Chunked:       c.head.Chunked,
		Body:          body,
	}, nil
}

// watch closes the connection should the context be cancelled before the
// returned stop function is called. The teardown goes through Close, so the
// broken event reaches the pool no matter which side notices first.
func (c *Conn) watch(ctx context.Context) (stop func()) {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}

	stopCh := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stopCh:
		}
	}()

	return func() {
		close(stopCh)
		<-finished
	}
}

// broke marks the connection unusable, closing the transport and reporting the
// event. The original error is returned with the close failure attached.
func (c *Conn) broke(err error) error {
	if !c.closed.Swap(true) {
		err = multierr.Append(err, c.client.Close())

		if c.OnBroken != nil {
			c.OnBroken(c)
		}
	}

	return err
}

// cause prefers the context's own verdict over an I/O error it provoked.
func cause(ctx context.Context, err error) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}
