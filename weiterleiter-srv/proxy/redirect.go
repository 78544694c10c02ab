package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// RedirectLogic is the exchangeable rewrite strategy of a Redirect.
type RedirectLogic interface {
	// ChangeURI modifies the request target in place.
	ChangeURI(u *url.URL)
}

// RedirectFunc adapts a plain function to the RedirectLogic interface.
type RedirectFunc func(u *url.URL)

// ChangeURI calls f.
func (f RedirectFunc) ChangeURI(u *url.URL) {
	f(u)
}

// Redirect is a terminal RequestHandler: it rewrites the request target using
// its RedirectLogic and forwards the request through the shared outbound
// client, returning the client's response or error unchanged. Redirect
// introduces no failure kind of its own.
type Redirect struct {
	// Logic provides the target rewrite.
	Logic RedirectLogic
}

// Handle rewrites the request target in place and issues the request.
func (r *Redirect) Handle(ctx context.Context, _ netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error) {
	r.Logic.ChangeURI(req.URL)
	return client.Do(req.WithContext(ctx))
}

// ChangeAuthority is a RedirectLogic which sets the authority (host[:port])
// of the target to a fixed value, leaving scheme, path and query untouched.
//
// For example, configured with "example.com", it rewrites a request for
// <own addr>/a/b/c to example.com/a/b/c.
type ChangeAuthority struct {
	to string
}

// NewChangeAuthority validates the destination authority and returns the
// rewrite logic. A malformed authority is a construction error; it can never
// surface per request.
func NewChangeAuthority(authority string) (*ChangeAuthority, error) {
	if err := validateAuthority(authority); err != nil {
		return nil, NewProxyError(ErrCodeInvalidAuthority, GetErrorDescription(ErrCodeInvalidAuthority), err)
	}
	return &ChangeAuthority{to: authority}, nil
}

// ChangeURI replaces only the authority component of the target.
func (c *ChangeAuthority) ChangeURI(u *url.URL) {
	u.Host = c.to
}

// Authority returns the configured destination authority.
func (c *ChangeAuthority) Authority() string {
	return c.to
}

// NewRedirectToAuthority is a convenience constructor for the common case of
// redirecting every request to a fixed authority.
func NewRedirectToAuthority(authority string) (*Redirect, error) {
	logic, err := NewChangeAuthority(authority)
	if err != nil {
		return nil, err
	}
	return &Redirect{Logic: logic}, nil
}

func validateAuthority(authority string) error {
	if authority == "" {
		return fmt.Errorf("authority must not be empty")
	}
	if strings.ContainsAny(authority, "/?#@ ") {
		return fmt.Errorf("authority %q must be host[:port] without path, query or userinfo", authority)
	}
	u, err := url.Parse("http://" + authority)
	if err != nil {
		return fmt.Errorf("authority %q: %w", authority, err)
	}
	if u.Host != authority {
		return fmt.Errorf("authority %q parses inconsistently (got %q)", authority, u.Host)
	}
	return nil
}
