package config

import (
	"math"
	"time"

	"go.uber.org/zap"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	HeadersSpace struct {
		Default, Maximal int
	}

	StartLineSize struct {
		Default, Maximal int
	}

	NETWriteBufferSize struct {
		Default, Maximal int
	}
)

type (
	URI struct {
		// StartLineSize bounds the request-line (and, on the client side, the
		// status-line) buffer. Setting the maximal boundary too low results in
		// rather ambiguous errors, as a method can then be reported as too long.
		StartLineSize StartLineSize
	}

	Headers struct {
		// Number is responsible for the headers storage size.
		// Default value is the initial capacity of the headers storage.
		// Maximal value is the maximum number of header fields allowed.
		Number HeadersNumber
		// Space limits the amount of memory occupied by header keys and values of
		// a single message head.
		Space HeadersSpace
	}

	Body struct {
		// MaxSize bounds the total body size, no matter how it is framed. A message
		// declaring (or streaming) more than this is rejected before the excess is
		// buffered. Use math.MaxUint64 to disable the limit.
		MaxSize uint64
		// MaxChunkSize bounds a single chunk of a chunked-encoded body.
		MaxChunkSize uint64
		// TrailerSpace limits the amount of memory occupied by trailer fields of a
		// chunked body.
		TrailerSpace int
	}

	NET struct {
		// ReadBufferSize is the size of the buffer used to read from the transport.
		ReadBufferSize int
		// ReadTimeout bounds the lifetime of idle keep-alive connections. If no data
		// arrives in this period, the connection is closed.
		ReadTimeout time.Duration
		// WriteBufferSize stores the serialized message until flushed. Maximal is
		// the watermark past which the buffer never grows; bigger bodies are
		// streamed through it in multiple flushes.
		WriteBufferSize NETWriteBufferSize
		// AcceptLoopInterruptPeriod controls how often a blocked Accept() call is
		// interrupted to check for shutdown.
		AcceptLoopInterruptPeriod time.Duration
	}

	HTTP struct {
		// PipelineDepth is the number of requests which may be parsed ahead of
		// their responses being written on a single server connection. 1 disables
		// pipelining, processing strictly one exchange at a time.
		PipelineDepth int
		// RecoverHandlers maps a handler panic or error into a plain 500 response
		// when no response bytes were written yet. When disabled, any handler
		// failure tears the connection down instead.
		RecoverHandlers bool
	}
)

// Config holds limits, pre-allocation hints and policy knobs, threaded explicitly
// into the codec, the framing resolver and the connection state machine. There is
// deliberately no ambient global configuration.
//
// Always start from Default() and modify what you need. Zero-value configs result
// in rather ambiguous errors.
type Config struct {
	URI     URI
	Headers Headers
	Body    Body
	NET     NET
	HTTP    HTTP
	// Log receives connection lifecycle events and teardown causes. Never invoked
	// on per-byte hot paths. Defaults to a nop logger.
	Log *zap.Logger
}

// Default returns a well-balanced general-purpose config.
func Default() *Config {
	return &Config{
		URI: URI{
			StartLineSize: StartLineSize{
				Default: 2 * 1024,
				// most web entities limit the request line to 4-8kb, so being able
				// to accommodate 16kb is pretty much tolerant.
				Maximal: 16 * 1024,
			},
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 50,
			},
			Space: HeadersSpace{
				Default: 1 * 1024,  // fairly enough in most cases,
				Maximal: 16 * 1024, // yet there might be extremely long cookies.
			},
		},
		Body: Body{
			MaxSize:      512 * 1024 * 1024, // 512 megabytes
			MaxChunkSize: 16 * 1024 * 1024,  // 16 megabytes
			TrailerSpace: 4 * 1024,
		},
		NET: NET{
			ReadBufferSize: 4 * 1024,
			ReadTimeout:    90 * time.Second,
			WriteBufferSize: NETWriteBufferSize{
				Default: 2 * 1024,
				Maximal: 64 * 1024,
			},
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
		HTTP: HTTP{
			PipelineDepth:   1,
			RecoverHandlers: true,
		},
		Log: zap.NewNop(),
	}
}

// Unlimited disables every size cap. Only ever useful in tests and benchmarks;
// never expose an engine configured this way to an untrusted peer.
func Unlimited() *Config {
	cfg := Default()
	cfg.URI.StartLineSize.Maximal = math.MaxInt
	cfg.Headers.Number.Maximal = math.MaxInt
	cfg.Headers.Space.Maximal = math.MaxInt
	cfg.Body.MaxSize = math.MaxUint64
	cfg.Body.MaxChunkSize = math.MaxUint64
	cfg.Body.TrailerSpace = math.MaxInt

	return cfg
}
