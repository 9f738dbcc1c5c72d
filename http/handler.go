package http

// Handler processes a single request and produces a response for it. The
// response is normally obtained via request.Respond() (or the Respond, Code and
// Error shorthands), which re-uses the builder paired with the connection.
type Handler func(request *Request) *Response
