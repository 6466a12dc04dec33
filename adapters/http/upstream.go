package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/browsegate/browsegate/domain/headers"
	"github.com/browsegate/browsegate/domain/proxy"
	"github.com/browsegate/browsegate/ports"
)

// Fetcher issues outbound requests to target sites. Redirects are
// followed automatically by the underlying client; failures are never
// retried here — retries, if desired, belong to the caller.
type Fetcher struct {
	client *http.Client
}

// FetcherConfig contains configuration for the outbound client.
type FetcherConfig struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewFetcher creates a new outbound HTTP client.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}
	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Fetch sends the request to the target with a sanitized header set
// and returns the upstream status, headers, and body stream. The
// caller owns the body and must close it.
func (f *Fetcher) Fetch(ctx context.Context, target string, req proxy.Request) (ports.FetchResult, error) {
	start := time.Now()

	var body io.Reader
	if len(req.Body) > 0 && req.Method != http.MethodGet && req.Method != http.MethodHead {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("create request: %w", err)
	}

	// Request-side sanitization: allow-listed headers only, identifying
	// headers dropped, desktop User-Agent guaranteed.
	for k, v := range headers.SanitizeRequest(req.Headers) {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("fetch %s: %w", target, err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return ports.FetchResult{
		Status:      resp.StatusCode,
		Headers:     respHeaders,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
		LatencyMs:   time.Since(start).Milliseconds(),
		FinalURL:    finalURL,
	}, nil
}

func isHopByHop(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Ensure interface compliance.
var _ ports.Upstream = (*Fetcher)(nil)
