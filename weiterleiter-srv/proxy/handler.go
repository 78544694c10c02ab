package proxy

import (
	"context"
	"net/http"
	"net/netip"
)

// RequestHandler is the contract every request-handling unit satisfies: given
// the caller's socket address and an inbound request, produce an outbound
// response or a failure.
//
// Ownership of req transfers into the handler; it may read and rewrite the
// request but must produce exactly one outcome. The client is the shared
// outbound pool, borrowed for the duration of the call; handlers must not
// assume exclusive access to it. The context is the inbound request's context,
// so a caller disconnect cancels any outbound work done on its behalf.
//
// Handlers must not mutate shared external state except through explicitly
// documented channels such as the Filter rejection callback.
type RequestHandler interface {
	Handle(ctx context.Context, from netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error)
}

// HandlerFunc adapts a plain function to the RequestHandler interface.
type HandlerFunc func(ctx context.Context, from netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, from netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error) {
	return f(ctx, from, req, client)
}
