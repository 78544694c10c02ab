package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/proxy"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/config"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
)

// NewClient builds the shared outbound HTTP client. It is created exactly
// once per server-loop invocation and handed by reference to every handler
// invocation; its connection pool is managed entirely by the transport.
func NewClient(cfg config.ClientConfig, timeoutSeconds int) (*http.Client, error) {
	timeout := time.Duration(timeoutSeconds) * time.Second

	if cfg.Protocol == "http3" {
		logger.Info("Outbound client using HTTP/3")
		return &http.Client{
			Timeout:       timeout,
			CheckRedirect: passThroughRedirects,
			Transport: &http3.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}, nil
	}

	transport := &http.Transport{
		DisableKeepAlives:     false,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       time.Duration(cfg.IdleConnTimeoutSeconds) * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if transport.MaxIdleConns == 0 {
		transport.MaxIdleConns = 100
	}
	if transport.MaxIdleConnsPerHost == 0 {
		transport.MaxIdleConnsPerHost = 10
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = 90 * time.Second
	}

	dialContext, err := newDialContext(cfg, timeout)
	if err != nil {
		return nil, err
	}
	transport.DialContext = dialContext

	// No Client.Timeout here: it would also deadline response bodies, which
	// kills long downloads and upgraded tunnels. Dial and header timeouts
	// bound the request instead.
	return &http.Client{
		CheckRedirect: passThroughRedirects,
		Transport:     transport,
	}, nil
}

// passThroughRedirects keeps the client from chasing redirects itself;
// redirect responses belong to the caller unchanged.
func passThroughRedirects(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// newDialContext builds the dial function for the outbound transport,
// applying the SOCKS5 forward and IPv4 settings when configured.
func newDialContext(cfg config.ClientConfig, timeout time.Duration) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	network := "tcp"
	dialer := &net.Dialer{Timeout: timeout}
	if cfg.ForceIPv4 {
		network = "tcp4"
		dialer.FallbackDelay = -1
	}

	if cfg.Socks5 == nil {
		return func(ctx context.Context, _, addr string) (net.Conn, error) {
			logger.Debug("DialContext: network=%s addr=%s", network, addr)
			return dialer.DialContext(ctx, network, addr)
		}, nil
	}

	var auth *proxy.Auth
	if cfg.Socks5.Username != nil {
		auth = &proxy.Auth{User: *cfg.Socks5.Username}
		if cfg.Socks5.Password != nil {
			auth.Password = *cfg.Socks5.Password
		}
	}

	socksDialer, err := proxy.SOCKS5(network, cfg.Socks5.Address, auth, dialer)
	if err != nil {
		return nil, NewProxyError(ErrCodeSOCKS5DialerFailed, GetErrorDescription(ErrCodeSOCKS5DialerFailed), fmt.Errorf("proxy %s: %w", cfg.Socks5.Address, err))
	}

	return func(ctx context.Context, _, addr string) (net.Conn, error) {
		logger.Debug("DialContext via SOCKS5 %s: addr=%s", cfg.Socks5.Address, addr)

		type contextDialer interface {
			DialContext(ctx context.Context, network, addr string) (net.Conn, error)
		}

		var conn net.Conn
		var dialErr error
		if ctxDialer, ok := socksDialer.(contextDialer); ok {
			conn, dialErr = ctxDialer.DialContext(ctx, network, addr)
		} else {
			conn, dialErr = socksDialer.Dial(network, addr)
		}
		if dialErr != nil {
			return nil, NewProxyError(ErrCodeSOCKS5ConnectFailed, GetErrorDescription(ErrCodeSOCKS5ConnectFailed), fmt.Errorf("target %s via SOCKS5 proxy %s: %w", addr, cfg.Socks5.Address, dialErr))
		}
		return conn, nil
	}, nil
}
