package dummy

import (
	"net"
	"time"

	"github.com/cobalt-web/cobalt/transport"
)

// Pipe returns two connected in-memory clients: whatever one writes, the other
// reads. Backed by net.Pipe, so reads genuinely block, which makes it suitable
// for full-duplex connection tests.
func Pipe(buffsize int) (a, b transport.Client) {
	ca, cb := net.Pipe()

	return transport.NewClient(ca, noTimeout, make([]byte, buffsize)),
		transport.NewClient(cb, noTimeout, make([]byte, buffsize))
}

const noTimeout time.Duration = 0
