package upstream

import (
	"io"
	"net/http"
	"time"
)

// Connection pool settings shared by all provider clients.
const (
	maxIdleConns        = 10
	maxConnsPerHost     = 5
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response is kept for the error message.
	maxErrorBody = 512
)

// NewHTTPClient creates a pooled HTTP client with a hard per-request timeout.
// A request that exceeds it surfaces as a network failure.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// ReadErrorBody returns a truncated copy of a failed response body.
func ReadErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(body)
}
