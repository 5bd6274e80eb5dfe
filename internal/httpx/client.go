// Package httpx builds the shared HTTP client used by the execution layer.
package httpx

import (
	"crypto/tls"
	"net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/floodgate-io/floodgate/internal/constants"
)

// NewPooledClient creates an HTTP client tuned for many concurrent small
// API calls against a single endpoint.
//
// Key characteristics:
//   - Connection pool sized for the full worker pool (64 per host)
//   - Connection reuse across requests, which matters when every worker
//     hits the same chat-completions endpoint
//   - HTTP/2 with a runtime toggle (DISABLE_HTTP2=true forces HTTP/1.1)
//   - No client-level timeout; each request carries its own deadline
func NewPooledClient() *http.Client {
	tr := &http.Transport{
		MaxIdleConns:        constants.HTTPMaxConnsPerHost,
		MaxIdleConnsPerHost: constants.HTTPMaxConnsPerHost,
		MaxConnsPerHost:     constants.HTTPMaxConnsPerHost,
		IdleConnTimeout:     constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: constants.HTTPTLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	_ = http2.ConfigureTransport(tr)

	// Runtime toggle for HTTP/2, useful when a gateway mishandles
	// multiplexed streams.
	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   0, // Per-request deadlines via context
	}
}
