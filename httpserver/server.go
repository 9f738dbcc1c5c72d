package httpserver

import (
	"net"
	"sync"
	"time"

	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/internal/protocol/http1"
	"github.com/cobalt-web/cobalt/transport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server accepts connections and hands each one to its own engine instance on
// its own goroutine. It does no routing and no TLS: the handler sees raw parsed
// requests, and wrapping the listener is the caller's business.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	log     *zap.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
	shutdown  atomic.Bool
}

func New(cfg *config.Config, handler http.Handler) *Server {
	return &Server{
		cfg:       cfg,
		handler:   handler,
		log:       cfg.Log,
		listeners: map[net.Listener]struct{}{},
		conns:     map[net.Conn]struct{}{},
	}
}

// Listen binds the address and serves it until shutdown.
func (s *Server) Listen(addr string) error {
	sock, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(sock)
}

// deadliner is implemented by listeners whose Accept can be interrupted, which
// is what lets a blocked accept loop notice a pending shutdown.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Serve runs the accept loop on an already bound listener. Returns nil after a
// graceful shutdown, once every served connection has finished.
func (s *Server) Serve(sock net.Listener) error {
	if s.shutdown.Load() {
		return sock.Close()
	}

	s.mu.Lock()
	s.listeners[sock] = struct{}{}
	s.mu.Unlock()

	s.log.Info("listening", zap.String("addr", sock.Addr().String()))

	interruptible, canInterrupt := sock.(deadliner)
	period := s.cfg.NET.AcceptLoopInterruptPeriod

	for {
		if canInterrupt && period > 0 {
			_ = interruptible.SetDeadline(time.Now().Add(period))
		}

		conn, err := sock.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() && !s.shutdown.Load() {
				continue
			}

			s.wg.Wait()

			if s.shutdown.Load() {
				return nil
			}

			return err
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.log.Debug("connection accepted", zap.Stringer("remote", conn.RemoteAddr()))

	client := transport.NewClient(conn, s.cfg.NET.ReadTimeout, make([]byte, s.cfg.NET.ReadBufferSize))
	http1.New(s.cfg, client, s.handler).Serve()

	s.log.Debug("connection finished", zap.Stringer("remote", conn.RemoteAddr()))
}

// Shutdown stops accepting new connections and waits for the served ones to
// finish on their own. Keep-alive connections finish at their next idle point:
// the read timeout bounds how long that may take.
func (s *Server) Shutdown() error {
	err := s.stopListeners()
	s.wg.Wait()

	return err
}

// Close tears everything down immediately, served connections included.
func (s *Server) Close() error {
	err := s.stopListeners()

	s.mu.Lock()
	for conn := range s.conns {
		err = multierr.Append(err, conn.Close())
	}
	s.mu.Unlock()

	s.wg.Wait()

	return err
}

func (s *Server) stopListeners() (err error) {
	if s.shutdown.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sock := range s.listeners {
		err = multierr.Append(err, sock.Close())
	}

	return err
}
