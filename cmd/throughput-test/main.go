package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/proxy"
)

// Throughput benchmark: spins up a payload server and a proxy redirecting to
// it, then hammers the proxy with concurrent downloads and reports the rates.

var (
	numRequests = flag.Int("numRequests", 100, "Total number of requests to send")
	concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
	testTimeout = flag.Duration("timeout", 30*time.Second, "Overall test timeout")
	dataSize    = flag.Int("dataSize", 1024*1024, "Size of payload in bytes per request")
)

type result struct {
	bytes int64
	err   error
}

func payloadServer(size int) (addr string, err error) {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 'a'
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		serveErr := http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/data" {
				http.NotFound(w, r)
				return
			}
			if _, err := w.Write(buf); err != nil {
				logger.Error("failed to write payload: %v", err)
			}
		}))
		if serveErr != nil {
			log.Printf("Payload server error: %v", serveErr)
		}
	}()
	return ln.Addr().String(), nil
}

func startProxy(targetAddr string) (addr string, err error) {
	redirect, err := proxy.NewRedirectToAuthority(targetAddr)
	if err != nil {
		return "", fmt.Errorf("invalid target authority: %w", err)
	}
	p, err := proxy.NewProxy(proxy.ProxyConfig{
		Handler:        redirect,
		TimeoutSeconds: 5,
	})
	if err != nil {
		return "", fmt.Errorf("create proxy: %w", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		if runErr := p.RunWithListener(ln); runErr != nil {
			log.Printf("Proxy server error: %v", runErr)
		}
	}()
	return ln.Addr().String(), nil
}

func fetchOnce(ctx context.Context, client *http.Client, url string) result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return result{0, fmt.Errorf("new request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return result{0, fmt.Errorf("do request: %w", err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return result{0, fmt.Errorf("status %d", resp.StatusCode)}
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return result{n, fmt.Errorf("read body: %w", err)}
	}
	if n != int64(*dataSize) {
		return result{n, fmt.Errorf("expected %d bytes, got %d", *dataSize, n)}
	}
	return result{n, nil}
}

func main() {
	flag.Parse()

	log.SetOutput(io.Discard)
	logger.SetLevel(logger.ERROR)

	ctx, cancel := context.WithTimeout(context.Background(), *testTimeout)
	defer cancel()

	targetAddr, err := payloadServer(*dataSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start payload server: %v\n", err)
		os.Exit(1)
	}

	proxyAddr, err := startProxy(targetAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start proxy: %v\n", err)
		os.Exit(1)
	}
	// Give both servers a moment to start accepting.
	time.Sleep(200 * time.Millisecond)

	client := &http.Client{Timeout: 10 * time.Second}
	url := "http://" + proxyAddr + "/data"

	jobs := make(chan struct{}, *numRequests)
	for i := 0; i < *numRequests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	results := make(chan result, *numRequests)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				results <- fetchOnce(ctx, client, url)
			}
		}()
	}
	wg.Wait()
	close(results)

	success, failures, total := 0, 0, int64(0)
	for res := range results {
		if res.err != nil {
			failures++
		} else {
			success++
			total += res.bytes
		}
	}
	dur := time.Since(start)
	rps := float64(success) / dur.Seconds()
	mbps := float64(total) / dur.Seconds() / 1024 / 1024

	fmt.Printf("Duration: %.2f s, Success: %d, Errors: %d\n", dur.Seconds(), success, failures)
	fmt.Printf("RPS: %.2f, Throughput: %.2f MB/s\n", rps, mbps)

	if failures > 0 || ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintln(os.Stderr, "Test failed: timeout or errors")
		os.Exit(1)
	}
}
