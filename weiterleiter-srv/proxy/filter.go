package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
)

// FilterLogic is the exchangeable admission strategy of a Filter. The
// predicate must be deterministic for a fixed (from, req) pair, free of side
// effects, and must not block: it is evaluated synchronously before any
// delegation.
type FilterLogic interface {
	// Filter returns whether the request should be let through.
	Filter(from netip.AddrPort, req *http.Request) bool
}

// FilterLogicFunc adapts a plain function to the FilterLogic interface.
type FilterLogicFunc func(from netip.AddrPort, req *http.Request) bool

// Filter calls f.
func (f FilterLogicFunc) Filter(from netip.AddrPort, req *http.Request) bool {
	return f(from, req)
}

// Filter is a RequestHandler decorator that evaluates an admission decision
// before delegating to an inner handler. On rejection it short-circuits with a
// *FilteredOutError without invoking the inner handler.
type Filter struct {
	// Inner is the request handler admitted requests are delegated to.
	Inner RequestHandler
	// Logic provides the admission decision.
	Logic FilterLogic
	// OnReject, if set, is invoked once for every rejected request. It is
	// observational only and must not affect the admission decision.
	OnReject func(from netip.AddrPort, req *http.Request)
}

// InnerError wraps a failure returned by the handler a Filter delegated to,
// so callers can tell delegated failures apart from rejections.
type InnerError struct {
	Err error
}

func (e *InnerError) Error() string {
	return e.Err.Error()
}

func (e *InnerError) Unwrap() error {
	return e.Err
}

// FilteredOutError reports a request that was rejected by a Filter. It
// carries the rejecting caller address and the original, unforwarded request
// for whatever maps failures to responses.
type FilteredOutError struct {
	From    netip.AddrPort
	Request *http.Request
}

func (e *FilteredOutError) Error() string {
	return fmt.Sprintf("request from %s was filtered out", e.From)
}

// Handle evaluates the admission decision and either delegates the request or
// short-circuits. Both branches produce the same result shape; no goroutine
// or allocation is spent on composition.
func (f *Filter) Handle(ctx context.Context, from netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error) {
	if f.Logic.Filter(from, req) {
		resp, err := f.Inner.Handle(ctx, from, req, client)
		if err != nil {
			return nil, &InnerError{Err: err}
		}
		return resp, nil
	}

	if f.OnReject != nil {
		f.OnReject(from, req)
	}
	return nil, &FilteredOutError{From: from, Request: req}
}

// AddrLookupFilter is a FilterLogic which looks the caller address up in a
// fixed set of known addresses and admits or rejects based on membership.
// Membership is keyed by the full socket address, IP and port. The set is
// immutable after construction and safe for concurrent reads.
type AddrLookupFilter struct {
	// List is the set of known addresses.
	List map[netip.AddrPort]struct{}
	// IsBlacklist selects the interpretation of List.
	//
	// If true, all requests from any address in the list are rejected and
	// all others are admitted. If false, all requests from any address not
	// in the list are rejected and all others are admitted.
	IsBlacklist bool
}

// Filter returns whether the caller address passes the lookup. Only the
// address is consulted; the request is ignored.
func (f *AddrLookupFilter) Filter(from netip.AddrPort, _ *http.Request) bool {
	_, listed := f.List[from]
	return f.IsBlacklist != listed
}

// NewAddrSet builds the lookup set for an AddrLookupFilter.
func NewAddrSet(addrs ...netip.AddrPort) map[netip.AddrPort]struct{} {
	set := make(map[netip.AddrPort]struct{}, len(addrs))
	for _, addr := range addrs {
		set[addr] = struct{}{}
	}
	return set
}

// ParseAddrSet builds the lookup set from textual ip:port addresses.
func ParseAddrSet(addrs []string) (map[netip.AddrPort]struct{}, error) {
	set := make(map[netip.AddrPort]struct{}, len(addrs))
	for _, addr := range addrs {
		parsed, err := netip.ParseAddrPort(addr)
		if err != nil {
			return nil, NewProxyError(ErrCodeInvalidFilterList, GetErrorDescription(ErrCodeInvalidFilterList), fmt.Errorf("address %q: %w", addr, err))
		}
		set[parsed] = struct{}{}
	}
	return set, nil
}

// NewAddrWhitelist is a shortcut for a Filter that admits only the listed
// caller addresses.
func NewAddrWhitelist(inner RequestHandler, list map[netip.AddrPort]struct{}) *Filter {
	return &Filter{
		Inner: inner,
		Logic: &AddrLookupFilter{List: list, IsBlacklist: false},
	}
}

// NewAddrBlacklist is a shortcut for a Filter that rejects the listed caller
// addresses and admits everyone else.
func NewAddrBlacklist(inner RequestHandler, list map[netip.AddrPort]struct{}) *Filter {
	return &Filter{
		Inner: inner,
		Logic: &AddrLookupFilter{List: list, IsBlacklist: true},
	}
}
