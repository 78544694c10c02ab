package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
)

// tunnelUpgrade completes a protocol upgrade (WebSocket and friends): it
// hijacks the inbound connection, replays the 101 response to the caller and
// splices both directions until either side closes. The upstream side of the
// tunnel is the response body, which the outbound client leaves open as a
// read/write stream for switching-protocol responses.
func (p *Proxy) tunnelUpgrade(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	upstream, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		logger.Error("Upgrade response body is not writable, cannot tunnel")
		http.Error(w, "Protocol upgrade failed", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		logger.Error("ResponseWriter does not support hijacking, cannot tunnel upgrade")
		http.Error(w, "Protocol upgrade failed", http.StatusInternalServerError)
		return
	}

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		logger.Error("Failed to hijack connection for upgrade: %v", err)
		http.Error(w, "Protocol upgrade failed", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	// Hijacked connections are exempt from the server's write deadline.
	_ = clientConn.SetDeadline(noDeadline)

	if err := writeUpgradeResponse(clientBuf, resp); err != nil {
		logger.Error("Failed to write upgrade response to client: %v", err)
		return
	}

	logger.Debug("Tunneling upgraded connection for %s (%s)", r.Host, resp.Header.Get("Upgrade"))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := io.Copy(upstream, clientConn); err != nil && !isClosedConnError(err) {
			logger.Debug("Tunnel client to upstream copy ended: %v", err)
		}
		upstream.Close()
	}()

	go func() {
		defer wg.Done()
		if _, err := io.Copy(clientConn, upstream); err != nil && !isClosedConnError(err) {
			logger.Debug("Tunnel upstream to client copy ended: %v", err)
		}
		clientConn.Close()
	}()

	wg.Wait()
	logger.Debug("Tunnel for %s closed", r.Host)
}

// writeUpgradeResponse replays the upstream 101 response head on the hijacked
// client connection.
func writeUpgradeResponse(w *bufio.ReadWriter, resp *http.Response) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode)); err != nil {
		return err
	}
	if err := resp.Header.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

var noDeadline = time.Time{}

// isClosedConnError reports whether the error is the expected result of the
// peer closing its end of a spliced connection.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
