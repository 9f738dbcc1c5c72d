package http1

import (
	"io"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/http/status"
	"github.com/cobalt-web/cobalt/internal/buffer"
	"github.com/cobalt-web/cobalt/internal/strutil"
	"github.com/cobalt-web/cobalt/transport"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Suit glues the parser, the framing resolver, the body decoder and the
// serializer into the per-connection state machine. One Suit owns exactly one
// connection for its whole lifetime.
type Suit struct {
	cfg        *config.Config
	client     transport.Client
	parser     *Parser
	serializer *Serializer
	body       *Body
	request    *http.Request
	handler    http.Handler
	log        *zap.Logger

	// broken is raised once the connection must not carry further exchanges.
	// Written by the pipelined writer goroutine, read by the parse loop.
	broken atomic.Bool
}

func New(cfg *config.Config, client transport.Client, handler http.Handler) *Suit {
	body := NewBody(client, cfg.Body)
	request := http.NewRequest(http.NewHeaders(), http.NewBody(), client)
	startLine := buffer.New(cfg.URI.StartLineSize.Default, cfg.URI.StartLineSize.Maximal)
	headers := buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal)

	return &Suit{
		cfg:        cfg,
		client:     client,
		parser:     NewParser(cfg, request, &startLine, &headers),
		serializer: NewSerializer(cfg, client),
		body:       body,
		request:    request,
		handler:    handler,
		log:        cfg.Log,
	}
}

// Serve drives the connection until it is no longer usable: the peer leaves,
// a fatal protocol violation arrives, keep-alive rules out further exchanges
// or a handler takes the transport away. The transport is closed on return
// unless it was hijacked.
func (s *Suit) Serve() {
	hijacked := false

	if s.cfg.HTTP.PipelineDepth > 1 {
		hijacked = s.servePipelined()
	} else {
		hijacked = s.serveSerial()
	}

	if !hijacked {
		if err := s.client.Close(); err != nil {
			s.log.Debug("closing connection", zap.Error(err))
		}
	}
}

func (s *Suit) serveSerial() (hijacked bool) {
	for {
		ok, err := s.nextRequest()
		if err != nil || !ok {
			s.respondError(err)
			return false
		}

		framing, err := ResolveRequest(s.request, s.cfg.Body)
		if err != nil {
			s.respondError(err)
			return false
		}

		s.armBody(framing)
		keepAlive := s.keepAliveWish(framing)

		resp := s.invoke(s.request)
		if s.request.WasHijacked() {
			return true
		}

		closeConn, err := s.serializer.Write(s.request.Protocol, s.request.Method, resp, keepAlive)
		if err != nil {
			s.log.Debug("writing response", zap.Error(err))
			return false
		}

		if !s.drainBody() || !keepAlive || closeConn {
			return false
		}

		s.request.Reset()
	}
}

// nextRequest reads and parses one request head off the transport. ok is false
// on a peaceful end of the connection; a non-nil error is a protocol violation
// deserving an error response.
func (s *Suit) nextRequest() (ok bool, err error) {
	started := false

	for {
		data, rerr := s.client.Read()
		if rerr != nil {
			if started && rerr == io.EOF {
				s.log.Debug("peer left mid-request")
			}

			return false, nil
		}

		if len(data) > 0 {
			started = true
		}

		done, extra, perr := s.parser.Parse(data)
		if perr != nil {
			return false, perr
		}

		if done {
			s.client.Unread(extra)
			return true, nil
		}
	}
}

// armBody re-arms the body decoder for the parsed request and hooks the
// deferred 100 Continue interim response when the peer asked for one.
func (s *Suit) armBody(framing BodyFraming) {
	s.body.Reset(framing)
	s.request.Body.Reset(s.body)

	if s.request.ExpectsContinue {
		protocol := s.request.Protocol
		s.body.OnFirstRetrieve(func() error {
			return s.serializer.WriteContinue(protocol)
		})
	}
}

// keepAliveWish computes whether the connection may carry another exchange
// after this one, before the response itself has a say.
func (s *Suit) keepAliveWish(framing BodyFraming) bool {
	if framing.ForcesClose() {
		return false
	}

	switch conn := s.request.Connection; {
	case strutil.HasToken(conn, "close"):
		return false
	case strutil.HasToken(conn, "keep-alive"):
		return true
	default:
		return s.request.Protocol.KeepAliveByDefault()
	}
}

// drainBody reads the unconsumed rest of the request body out of the
// connection, leaving the stream positioned at the next request. Reports
// whether the connection is still usable.
func (s *Suit) drainBody() bool {
	if s.body.Fully() {
		return true
	}

	if s.request.ExpectsContinue && !s.body.Started() {
		// the interim response was never sent, so the peer never transmitted
		// the body. There is nothing to drain and no way to tell where the next
		// request would start.
		return false
	}

	if err := s.request.Body.Discard(); err != nil {
		s.log.Debug("draining request body", zap.Error(err))
		return false
	}

	return true
}

func (s *Suit) invoke(request *http.Request) (resp *http.Response) {
	if s.cfg.HTTP.RecoverHandlers {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("handler panicked", zap.Any("recovered", p))
				resp = http.Code(request, status.InternalServerError)
			}
		}()
	}

	resp = s.handler(request)
	if resp == nil {
		resp = http.Code(request, status.InternalServerError)
	}

	return resp
}

// respondError answers a protocol violation with its status code and gives up
// on the connection. A nil error and the connection-close pseudo-code pass
// silently.
func (s *Suit) respondError(err error) {
	if err == nil {
		return
	}

	code := status.BadRequest
	if httpErr, ok := err.(status.HTTPError); ok {
		if httpErr.Code == status.CloseConnection {
			return
		}

		code = httpErr.Code
	}

	resp := s.request.Respond().Code(code).String(status.FromCode(code))

	if _, werr := s.serializer.Write(s.request.Protocol, s.request.Method, resp, false); werr != nil {
		s.log.Debug("writing error response", zap.Error(werr))
	}
}

// servePipelined runs the connection with up to PipelineDepth requests parsed
// ahead of their responses. Handlers run concurrently, each on its own
// goroutine with a detached request; the writer goroutine serializes finished
// exchanges strictly in arrival order.
//
// Requests that need the live transport mid-exchange (Expect: 100-continue,
// upgrades) cannot overlap with anything: the pipeline is flushed first and
// the request is served serially.
func (s *Suit) servePipelined() (hijacked bool) {
	queue := make(chan *exchange, s.cfg.HTTP.PipelineDepth)
	writerDone := make(chan struct{})

	go s.writeLoop(queue, writerDone)

	defer func() {
		close(queue)
		<-writerDone
	}()

	for !s.broken.Load() {
		ok, err := s.nextRequest()
		if err != nil || !ok {
			s.flush(queue)
			s.respondError(err)
			return false
		}

		framing, err := ResolveRequest(s.request, s.cfg.Body)
		if err != nil {
			s.flush(queue)
			s.respondError(err)
			return false
		}

		keepAlive := s.keepAliveWish(framing)

		if s.request.ExpectsContinue || len(s.request.Upgrade) > 0 {
			if !s.serveBarriered(queue, framing, keepAlive) {
				return s.request.WasHijacked()
			}

			s.request.Reset()
			continue
		}

		body, err := s.prefetchBody(framing)
		if err != nil {
			s.flush(queue)
			s.respondError(err)
			return false
		}

		ex := newExchange(detachRequest(s.request, body), keepAlive)
		s.request.Reset()

		queue <- ex

		go func() {
			ex.complete(s.invoke(ex.request))
		}()

		if !keepAlive {
			// nothing may follow a close-bound exchange. Let the writer drain.
			return false
		}
	}

	return false
}

// serveBarriered flushes the pipeline and serves the current request serially,
// with exclusive transport access. Reports whether the connection survives.
func (s *Suit) serveBarriered(queue chan *exchange, framing BodyFraming, keepAlive bool) bool {
	s.flush(queue)

	if s.broken.Load() {
		return false
	}

	s.armBody(framing)

	resp := s.invoke(s.request)
	if s.request.WasHijacked() {
		return false
	}

	closeConn, err := s.serializer.Write(s.request.Protocol, s.request.Method, resp, keepAlive)
	if err != nil {
		s.log.Debug("writing response", zap.Error(err))
		return false
	}

	return s.drainBody() && keepAlive && !closeConn
}

// prefetchBody pulls the whole request body off the wire in advance, so the
// next head can be parsed while handlers are still busy.
func (s *Suit) prefetchBody(framing BodyFraming) (*MemoryBody, error) {
	s.armBody(framing)

	body := &MemoryBody{}
	body.hint, body.sized = s.body.LengthHint()

	if framing.Kind == FramingNone {
		return body, nil
	}

	data, err := s.request.Body.Bytes()
	if err != nil {
		return nil, err
	}

	// the connection-owned buffer is re-used by the next prefetch.
	body.data = append([]byte(nil), data...)

	if trailers := s.body.Trailers(); trailers != nil && !trailers.Empty() {
		body.trailers = trailers.Clone()
	}

	return body, nil
}

// writeLoop serializes finished exchanges in FIFO order. Detached requests
// carry no transport, so a hijack cannot happen here: upgrades are flushed and
// served serially before they ever reach the queue.
func (s *Suit) writeLoop(queue chan *exchange, done chan<- struct{}) {
	for ex := range queue {
		if ex.barrier != nil {
			close(ex.barrier)
			continue
		}

		<-ex.done

		if s.broken.Load() {
			continue
		}

		closeConn, err := s.serializer.Write(ex.request.Protocol, ex.request.Method, ex.resp, ex.keepAlive)
		if err != nil {
			s.log.Debug("writing response", zap.Error(err))
			s.broken.Store(true)
			continue
		}

		if closeConn || !ex.keepAlive {
			s.broken.Store(true)
		}
	}

	close(done)
}

// flush blocks until every exchange queued so far has been written out.
func (s *Suit) flush(queue chan *exchange) {
	barrier := newBarrier()
	queue <- barrier
	<-barrier.barrier
}
