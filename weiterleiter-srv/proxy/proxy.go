package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/config"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/stats"
)

type contextKey struct {
	name string
}

var remoteAddrKey = &contextKey{name: "remote-addr"}

// WithRemoteAddr stores the parsed remote address of an inbound connection
// in the context. The server loop does this once per connection.
func WithRemoteAddr(ctx context.Context, from netip.AddrPort) context.Context {
	return context.WithValue(ctx, remoteAddrKey, from)
}

// RemoteAddrFromContext returns the remote address stored by WithRemoteAddr.
func RemoteAddrFromContext(ctx context.Context) (netip.AddrPort, bool) {
	val := ctx.Value(remoteAddrKey)
	if val == nil {
		return netip.AddrPort{}, false
	}
	from, ok := val.(netip.AddrPort)
	return from, ok
}

// ErrorHandler maps a handler failure to an HTTP response for the caller.
// The server loop itself defines no mapping from failure kinds to status
// codes; that is this collaborator's job.
type ErrorHandler func(w http.ResponseWriter, from netip.AddrPort, err error)

// ProxyConfig is the immutable configuration of one proxy instance.
type ProxyConfig struct {
	// ListenAddress is the address the proxy listens on.
	ListenAddress string
	// Handler is the root request handler all inbound requests enter through.
	// It must outlive the server loop.
	Handler RequestHandler
	// Client configures the shared outbound client.
	Client config.ClientConfig
	// TimeoutSeconds is applied to inbound reads/writes and outbound calls.
	TimeoutSeconds int
	// ErrorHandler is invoked for every failed request. If nil, a default
	// is used that answers 403 for filtered requests and a 502 error page
	// otherwise.
	ErrorHandler ErrorHandler
	// Collector, if set, records forwarded requests and forwarding errors.
	// Rejections are recorded through the Filter rejection callback, not
	// here, so that each rejected request is counted exactly once.
	Collector stats.Collector
}

// Proxy runs a configured handler chain behind a listening socket. The state
// progression of one Run is: unbound, bound, serving, then stopped or failed.
type Proxy struct {
	cfg       ProxyConfig
	client    *http.Client
	server    *http.Server
	collector stats.Collector
}

// NewProxy validates the configuration and creates a proxy instance.
func NewProxy(cfg ProxyConfig) (*Proxy, error) {
	if cfg.Handler == nil {
		return nil, NewProxyError(ErrCodeNoHandler, GetErrorDescription(ErrCodeNoHandler), nil)
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}
	collector := cfg.Collector
	if collector == nil {
		collector = stats.NewDummyCollector()
	}
	return &Proxy{cfg: cfg, collector: collector}, nil
}

// Run binds the listen address and serves until the server stops. It resolves
// only when serving ends: nil after Stop, a bind error if the address cannot
// be acquired, a start error if the server cannot begin serving, or a serve
// error if the transport fails while running. No failure is retried.
func (p *Proxy) Run() error {
	listener, err := net.Listen("tcp", p.cfg.ListenAddress)
	if err != nil {
		return NewProxyError(ErrCodeListenerBindFailed, GetErrorDescription(ErrCodeListenerBindFailed), err)
	}
	return p.RunWithListener(listener)
}

// RunWithListener serves on an already bound listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	client, err := NewClient(p.cfg.Client, p.cfg.TimeoutSeconds)
	if err != nil {
		return NewProxyError(ErrCodeServerStartFailed, GetErrorDescription(ErrCodeServerStartFailed), err)
	}
	p.client = client

	timeout := time.Duration(p.cfg.TimeoutSeconds) * time.Second
	p.server = &http.Server{
		Handler:      http.HandlerFunc(p.handleRequest),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			from, err := netip.ParseAddrPort(c.RemoteAddr().String())
			if err != nil {
				logger.Error("Failed to parse remote address %q: %v", c.RemoteAddr(), err)
				return ctx
			}
			return WithRemoteAddr(ctx, from)
		},
	}

	logger.Info("Starting proxy server on %s", listener.Addr())
	err = p.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return NewProxyError(ErrCodeServeFailed, GetErrorDescription(ErrCodeServeFailed), err)
}

// Run is the package-level entry point: it builds a proxy from the
// configuration and serves until the server stops.
func Run(cfg ProxyConfig) error {
	p, err := NewProxy(cfg)
	if err != nil {
		return err
	}
	return p.Run()
}

// Stop gracefully shuts the server down.
func (p *Proxy) Stop() error {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.server.Shutdown(ctx)
	}
	return nil
}

// handleRequest is the per-request completion point: it invokes the root
// handler and relays its outcome to the caller.
func (p *Proxy) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, ok := RemoteAddrFromContext(ctx)
	if !ok {
		// The remote address could not be parsed at accept time; without a
		// caller identity no admission decision is possible.
		logger.Error("No remote address for request from %q", r.RemoteAddr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	outReq, err := outboundRequest(r)
	if err != nil {
		logger.Error("Failed to prepare outbound request from %s: %v", from, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	targetHost := outReq.URL.Host

	resp, err := p.cfg.Handler.Handle(ctx, from, outReq, p.client)
	if err != nil {
		var filtered *FilteredOutError
		if errors.As(err, &filtered) {
			logger.Warn("Request from %s for %s was filtered out", filtered.From, targetHost)
		} else {
			logger.Error("Failed to forward request from %s to %s: %v", from, targetHost, err)
			if recordErr := p.collector.RecordError(ctx, from.String(), "forward_error", err.Error()); recordErr != nil {
				logger.Error("Failed to record error: %v", recordErr)
			}
		}
		p.cfg.ErrorHandler(w, from, err)
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	if isUpgradeResponse(resp) {
		p.tunnelUpgrade(w, r, resp)
		return
	}

	if recordErr := p.collector.RecordForwardedRequest(ctx, from.String(), targetHost, r.Method, resp.StatusCode, resp.ContentLength); recordErr != nil {
		logger.Error("Failed to record forwarded request: %v", recordErr)
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Error("Failed to copy response body: %v", err)
	}
}

// hopByHopHeaders are stripped when building the outbound request. Connection
// and Upgrade are kept for WebSocket upgrades.
var hopByHopHeaders = map[string]struct{}{
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Connection":          {},
	"Upgrade":             {},
}

// outboundRequest builds a client-ready request from an inbound one: absolute
// target URL, hop-by-hop headers stripped, body passed through. The returned
// request is what the handler chain owns and rewrites.
func outboundRequest(r *http.Request) (*http.Request, error) {
	var targetURL string
	if r.URL.IsAbs() {
		targetURL = r.URL.String()
	} else {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		targetURL = fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	isWebSocket := isWebSocketUpgrade(r.Header)

	for name, values := range r.Header {
		if _, hop := hopByHopHeaders[name]; hop {
			continue
		}
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	if isWebSocket {
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
	}

	return req, nil
}

func isWebSocketUpgrade(h http.Header) bool {
	return strings.EqualFold(h.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(h.Get("Connection")), "upgrade")
}

func isUpgradeResponse(resp *http.Response) bool {
	return resp.StatusCode == http.StatusSwitchingProtocols && resp.Header.Get("Upgrade") != ""
}

// DefaultErrorHandler is the error-to-response collaborator used when
// ProxyConfig.ErrorHandler is nil: 403 for filtered requests, 504 for
// timeouts, otherwise a 502 error page.
func DefaultErrorHandler(w http.ResponseWriter, from netip.AddrPort, err error) {
	var filtered *FilteredOutError
	if errors.As(err, &filtered) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		http.Error(w, "Request timeout", http.StatusGatewayTimeout)
		return
	}
	writeProxyErrorResponse(w, err, ErrCodeHTTPForwardFailed)
}

func writeProxyErrorResponse(w http.ResponseWriter, originalErr error, defaultErrorCode string) {
	errorCode := defaultErrorCode
	var proxyErr *Error
	if errors.As(originalErr, &proxyErr) {
		errorCode = proxyErr.Code
	}

	badGatewayResp := NewBadGatewayResponse(errorCode)
	defer func() {
		if badGatewayResp.Body != nil {
			badGatewayResp.Body.Close()
		}
	}()

	for key, values := range badGatewayResp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(badGatewayResp.StatusCode)
	if badGatewayResp.Body != nil {
		if _, err := io.Copy(w, badGatewayResp.Body); err != nil {
			logger.Error("Failed to copy bad gateway response body: %v", err)
		}
	}
}
