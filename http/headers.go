package http

import "github.com/cobalt-web/cobalt/kv"

type (
	// Headers is an ordered case-insensitive multimap of header fields. Insertion
	// order is authoritative: serialization never reorders or deduplicates.
	Headers = *kv.Storage
	// Header is a single header field.
	Header = kv.Pair
)

// NewHeaders returns an empty headers storage.
func NewHeaders() Headers {
	return kv.New()
}
