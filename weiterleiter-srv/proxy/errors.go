package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error represents a proxy-specific error with a code and description.
type Error struct {
	Code        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProxyError creates a new Error with the given code and description.
func NewProxyError(code, description string, cause error) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Cause:       cause,
	}
}

// Proxy Error Codes
const (
	// Configuration and Initialization Errors (E1000-E1999)
	ErrCodeNoHandler           = "E1001"
	ErrCodeInvalidAuthority    = "E1002"
	ErrCodeClientInitFailed    = "E1003"
	ErrCodeInvalidFilterList   = "E1004"
	ErrCodeDomainsFileInvalid  = "E1005"
	ErrCodeListenerBindFailed  = "E1006"
	ErrCodeServerStartFailed   = "E1007"
	ErrCodeServeFailed         = "E1008"
	ErrCodeConfigurationError  = "E1009"
	ErrCodeInvalidListenerAddr = "E1010"

	// Connection and Network Errors (E2000-E2999)
	ErrCodeDialFailed            = "E2001"
	ErrCodeUpstreamConnectFailed = "E2002"
	ErrCodeSOCKS5DialerFailed    = "E2003"
	ErrCodeSOCKS5ConnectFailed   = "E2004"

	// HTTP Processing Errors (E4000-E4999)
	ErrCodeHTTPForwardFailed      = "E4001"
	ErrCodeHTTPHijackFailed       = "E4002"
	ErrCodeHTTPHijackNotSupported = "E4003"
	ErrCodeHTTPUpgradeFailed      = "E4004"
	ErrCodeInvalidRemoteAddr      = "E4005"

	// Access Control Errors (E7000-E7999)
	ErrCodeRequestFiltered = "E7001"
)

// ErrorDescriptions maps error codes to human-readable descriptions.
var ErrorDescriptions = map[string]string{
	ErrCodeNoHandler:           "No request handler configured",
	ErrCodeInvalidAuthority:    "Invalid destination authority",
	ErrCodeClientInitFailed:    "Failed to initialize outbound HTTP client",
	ErrCodeInvalidFilterList:   "Invalid address in filter list",
	ErrCodeDomainsFileInvalid:  "Invalid or unreadable domains file",
	ErrCodeListenerBindFailed:  "Failed to bind network listener",
	ErrCodeServerStartFailed:   "Failed to start HTTP server",
	ErrCodeServeFailed:         "HTTP server stopped with error",
	ErrCodeConfigurationError:  "Configuration error",
	ErrCodeInvalidListenerAddr: "Invalid listen address",

	ErrCodeDialFailed:            "Failed to dial target address",
	ErrCodeUpstreamConnectFailed: "Failed to connect to upstream server",
	ErrCodeSOCKS5DialerFailed:    "Failed to create SOCKS5 dialer",
	ErrCodeSOCKS5ConnectFailed:   "SOCKS5 connection failed",

	ErrCodeHTTPForwardFailed:      "Failed to forward HTTP request",
	ErrCodeHTTPHijackFailed:       "Failed to hijack HTTP connection",
	ErrCodeHTTPHijackNotSupported: "HTTP connection hijacking not supported",
	ErrCodeHTTPUpgradeFailed:      "HTTP protocol upgrade failed",
	ErrCodeInvalidRemoteAddr:      "Invalid remote address on inbound connection",

	ErrCodeRequestFiltered: "Request rejected by admission filter",
}

// GetErrorDescription returns the description for a given error code.
func GetErrorDescription(code string) string {
	if desc, exists := ErrorDescriptions[code]; exists {
		return desc
	}
	return "Unknown error code"
}

func hasCode(err error, code string) bool {
	var proxyErr *Error
	if errors.As(err, &proxyErr) {
		return proxyErr.Code == code
	}
	return false
}

// IsBindError reports whether the error was raised while binding the listener,
// before any connection was accepted.
func IsBindError(err error) bool {
	return hasCode(err, ErrCodeListenerBindFailed)
}

// IsStartError reports whether the error was raised while starting the server
// on an already bound listener.
func IsStartError(err error) bool {
	return hasCode(err, ErrCodeServerStartFailed)
}

// IsServeError reports whether the server stopped with an error after it
// began serving.
func IsServeError(err error) bool {
	return hasCode(err, ErrCodeServeFailed)
}

// NewBadGatewayResponse creates an HTTP 502 Bad Gateway response from an error
// code. It populates the response body with the error code and its description
// in HTML format.
func NewBadGatewayResponse(errorCode string) *http.Response {
	description := GetErrorDescription(errorCode)
	title := "502 Bad Gateway"
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body>
    <h1>%s</h1>
    <p>The proxy received an invalid response from the upstream server it accessed in attempting to fulfill the request.</p>
    <p>Error Code: %s</p>
    <p>Description: %s</p>
</body>
</html>`, title, title, errorCode, description)

	bodyBytes := []byte(htmlBody)

	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", fmt.Sprintf("%d", len(bodyBytes)))
	header.Set("X-Proxy-Error", errorCode)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusBadGateway, http.StatusText(http.StatusBadGateway)),
		StatusCode:    http.StatusBadGateway,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(bodyBytes)),
		ContentLength: int64(len(bodyBytes)),
	}
}
