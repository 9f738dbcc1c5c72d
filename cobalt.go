// Package cobalt is a transport-agnostic HTTP/1.x protocol engine: it parses
// requests off a byte stream, frames and streams message bodies, keeps the
// connection state machine honest and serializes responses. Routing, TLS and
// middleware are deliberately left to the layers above.
//
// The typical server entrypoint:
//
//	app := cobalt.New(func(req *http.Request) *http.Response {
//		return http.Respond(req).String("hello")
//	})
//	err := app.Listen(":8080")
//
// The client role lives in the client package, the raw per-connection engine
// in internal/protocol/http1 behind the httpserver facade.
package cobalt

import (
	"github.com/cobalt-web/cobalt/config"
	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/httpserver"
)

// App bundles a handler with a config and the server lifecycle.
type App struct {
	cfg     *config.Config
	handler http.Handler
	server  *httpserver.Server
}

func New(handler http.Handler) *App {
	return &App{
		cfg:     config.Default(),
		handler: handler,
	}
}

// Tune replaces the default config. Must be called before Listen.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Listen serves the address until GracefulShutdown or Stop is called.
func (a *App) Listen(addr string) error {
	a.server = httpserver.New(a.cfg, a.handler)
	return a.server.Listen(addr)
}

// GracefulShutdown stops accepting new connections and lets the active ones
// finish on their own.
func (a *App) GracefulShutdown() error {
	return a.server.Shutdown()
}

// Stop tears the server down immediately, active connections included.
func (a *App) Stop() error {
	return a.server.Close()
}
