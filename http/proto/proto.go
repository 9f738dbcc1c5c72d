package proto

import "github.com/indigo-web/utils/uf"

type Protocol uint8

const (
	Unknown Protocol = iota
	HTTP10
	HTTP11
)

// String returns the protocol token as it appears on the wire.
func (p Protocol) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	}

	return ""
}

// KeepAliveByDefault reports whether connections of this protocol version are
// persistent unless a Connection header says otherwise.
func (p Protocol) KeepAliveByDefault() bool {
	return p == HTTP11
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// FromBytes parses a protocol token of the exact form HTTP/x.x. Anything else,
// including HTTP/2 preface tokens, results in Unknown.
func FromBytes(raw []byte) Protocol {
	if len(raw) != protoTokenLength ||
		uf.B2S(raw[:majorVersionOffset]) != httpScheme ||
		raw[minorVersionOffset-1] != '.' {
		return Unknown
	}

	return Parse(raw[majorVersionOffset]-'0', raw[minorVersionOffset]-'0')
}

func Parse(major, minor uint8) Protocol {
	if major == 1 {
		switch minor {
		case 0:
			return HTTP10
		case 1:
			return HTTP11
		}
	}

	return Unknown
}
