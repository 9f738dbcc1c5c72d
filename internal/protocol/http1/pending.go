package http1

import (
	"io"
	"strings"

	"github.com/cobalt-web/cobalt/http"
	"github.com/cobalt-web/cobalt/kv"
)

// exchange is a single pipelined request-response pair in flight. The handler
// goroutine fills resp and closes done; the writer goroutine serializes
// exchanges strictly in arrival order, so responses leave the connection FIFO
// no matter in which order handlers finish.
type exchange struct {
	request   *http.Request
	keepAlive bool
	resp      *http.Response
	done      chan struct{}

	// barrier marks a flush sentinel instead of a real exchange: the writer
	// closes it once everything queued before it has been written out.
	barrier chan struct{}
}

func newExchange(request *http.Request, keepAlive bool) *exchange {
	return &exchange{
		request:   request,
		keepAlive: keepAlive,
		done:      make(chan struct{}),
	}
}

func newBarrier() *exchange {
	return &exchange{barrier: make(chan struct{})}
}

func (e *exchange) complete(resp *http.Response) {
	e.resp = resp
	close(e.done)
}

// MemoryBody replays an already prefetched body. Pipelined handlers run
// concurrently with parsing of the requests behind them, so they cannot share
// the transport; their bodies are pulled off the wire in advance and handed
// over detached. The client role uses it the same way for pipelined responses.
type MemoryBody struct {
	data     []byte
	hint     uint64
	sized    bool
	trailers *kv.Storage
	consumed bool
}

func (m *MemoryBody) Retrieve() ([]byte, error) {
	if m.consumed || len(m.data) == 0 {
		m.consumed = true
		return nil, io.EOF
	}

	m.consumed = true

	return m.data, nil
}

func (m *MemoryBody) LengthHint() (length uint64, known bool) {
	return m.hint, m.sized
}

func (m *MemoryBody) Trailers() *kv.Storage {
	return m.trailers
}

// detachRequest deep-copies the connection-owned request so a concurrent
// handler may use it while the connection already parses the next one. Every
// string is cloned: the originals are views into parser buffers which the next
// exchange overwrites. The copy carries no transport: the connection stays in
// exclusive use of the parse loop, so a detached request cannot be hijacked.
func detachRequest(src *http.Request, body *MemoryBody) *http.Request {
	headers := kv.NewPrealloc(src.Headers.Len())
	for key, value := range src.Headers.Iter() {
		headers.Add(strings.Clone(key), strings.Clone(value))
	}

	httpBody := http.NewBody()
	httpBody.Reset(body)

	detached := http.NewRequest(headers, httpBody, nil)
	detached.Remote = src.Remote
	detached.Method = src.Method
	detached.Target = strings.Clone(src.Target)
	detached.Protocol = src.Protocol
	detached.ContentLength = src.ContentLength
	detached.Chunked = src.Chunked
	detached.Connection = strings.Clone(src.Connection)
	detached.Upgrade = strings.Clone(src.Upgrade)

	return detached
}

// NewMemoryBody wraps an already buffered body.
func NewMemoryBody(data []byte, hint uint64, sized bool, trailers *kv.Storage) *MemoryBody {
	return &MemoryBody{data: data, hint: hint, sized: sized, trailers: trailers}
}
