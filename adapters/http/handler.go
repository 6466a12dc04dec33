// Package http provides the inbound HTTP surface for the proxy.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/browsegate/browsegate/adapters/metrics"
	"github.com/browsegate/browsegate/app"
	"github.com/browsegate/browsegate/domain/headers"
	"github.com/browsegate/browsegate/domain/proxy"
	"github.com/browsegate/browsegate/domain/rewrite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxRequestBody caps how much of an inbound body is forwarded.
const maxRequestBody = 10 << 20 // 10MB

// maxRewriteBody caps how much HTML is buffered for rewriting. Larger
// HTML bodies are streamed through untouched.
const maxRewriteBody = 20 << 20 // 20MB

// UsageHint is the body returned for the benign empty state: a request
// to the proxy endpoint naming neither a session nor a target.
type UsageHint struct {
	Message string `json:"message"`
	Usage   string `json:"usage"`
	Example string `json:"example"`
}

// errorBody is the wire shape of every pipeline error.
type errorBody struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// ProxyHandler wraps the proxy service for HTTP handling.
type ProxyHandler struct {
	service *app.ProxyService
	logger  zerolog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewProxyHandler creates a new HTTP proxy handler. m may be nil.
func NewProxyHandler(service *app.ProxyService, logger zerolog.Logger, m *metrics.Collector) *ProxyHandler {
	return &ProxyHandler{
		service: service,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// ServeHTTP handles an inbound proxy request end to end: classify,
// guard, fetch, sanitize, rewrite or stream, meter.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := h.now()

	classified, cerr := proxy.Classify(r.URL.EscapedPath(), r.URL.Query())

	if classified.Mode == proxy.ModeEmpty {
		h.writeUsageHint(w)
		h.countRequest(classified.Mode, http.StatusOK)
		return
	}
	if cerr != nil {
		h.writeError(w, classified.Mode, cerr)
		h.service.RecordFailure(&app.AuthContext{Mode: classified.Mode, SessionID: classified.SessionID},
			classified.TargetURL, r.Method, cerr.Message)
		return
	}
	if classified.Mode == proxy.ModeSimple && !h.service.Config().SimpleModeEnabled {
		h.writeError(w, classified.Mode, &proxy.ErrSessionInvalid)
		return
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read request body")
			h.writeError(w, classified.Mode, &proxy.ErrorResponse{
				Status:  400,
				Code:    "bad_request",
				Message: "Failed to read request body",
			})
			return
		}
	}

	req := proxy.Request{
		Mode:      classified.Mode,
		SessionID: classified.SessionID,
		TargetURL: classified.TargetURL,
		Method:    r.Method,
		Headers:   extractHeaders(r),
		Body:      body,
		RemoteIP:  extractIP(r),
		UserAgent: r.UserAgent(),
		TraceID:   middleware.GetReqID(ctx),
	}

	result := h.service.Handle(ctx, req)

	if result.Error != nil {
		h.logDenied(req, result.Error)
		h.writeError(w, req.Mode, result.Error)
		h.service.RecordFailure(result.Auth, result.Target, req.Method, result.Error.Message)
		return
	}

	fetch := result.Fetch
	defer fetch.Body.Close()

	if h.metrics != nil {
		h.metrics.UpstreamDuration.WithLabelValues(metrics.StatusLabel(fetch.Status)).
			Observe(float64(fetch.LatencyMs) / 1000)
	}

	if rewrite.IsHTML(fetch.ContentType) {
		h.serveRewritten(w, req, result, start)
	} else {
		h.serveStreamed(w, req, result, start)
	}
}

// serveRewritten buffers an HTML body, runs it through the rewriter,
// and sends the transformed document. The metered byte count is the
// rewritten length, since that is what was transmitted.
func (h *ProxyHandler) serveRewritten(w http.ResponseWriter, req proxy.Request, result app.HandleResult, start time.Time) {
	fetch := result.Fetch

	raw, err := io.ReadAll(io.LimitReader(fetch.Body, maxRewriteBody))
	if err != nil {
		h.logger.Warn().Err(err).Str("target", result.Target).Msg("reading upstream body failed")
		if h.metrics != nil {
			h.metrics.UpstreamErrors.Inc()
		}
		h.writeError(w, req.Mode, &proxy.ErrUpstreamFetch)
		h.service.RecordFailure(result.Auth, result.Target, req.Method, "upstream body read failed")
		return
	}

	// Resolve against the final URL so redirect chains rewrite relative
	// to where the content actually came from.
	targetURL, perr := url.Parse(fetch.FinalURL)
	if perr != nil || targetURL.Host == "" {
		targetURL, _ = url.Parse(result.Target)
	}

	out := raw
	rewriteStart := h.now()
	if rewritten, rerr := rewrite.Rewrite(raw, targetURL, req.SessionID); rerr == nil {
		out = rewritten
	} else {
		// Malformed beyond the parser's tolerance: pass through as-is
		// rather than failing the whole request.
		h.logger.Warn().Err(rerr).Str("target", result.Target).Msg("html rewrite failed, passing through")
	}
	if h.metrics != nil {
		h.metrics.RewriteDuration.Observe(time.Since(rewriteStart).Seconds())
	}

	latencyMs := time.Since(start).Milliseconds()
	outHeaders := headers.SanitizeResponse(fetch.Headers, latencyMs)
	// The rewritten length replaces whatever the upstream declared.
	delete(outHeaders, "Content-Encoding")
	for k, v := range outHeaders {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))

	w.WriteHeader(fetch.Status)
	if _, err := w.Write(out); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response body")
	}

	h.finish(req, result, fetch.Status, int64(len(out)), latencyMs, "html")
}

// serveStreamed copies a non-HTML body straight through, counting bytes
// for metering. No buffering beyond the copy window.
func (h *ProxyHandler) serveStreamed(w http.ResponseWriter, req proxy.Request, result app.HandleResult, start time.Time) {
	fetch := result.Fetch

	latencyMs := time.Since(start).Milliseconds()
	for k, v := range headers.SanitizeResponse(fetch.Headers, latencyMs) {
		w.Header().Set(k, v)
	}

	w.WriteHeader(fetch.Status)

	written, err := io.Copy(w, fetch.Body)
	if err != nil {
		// Headers are gone; all we can do is log and meter what was sent.
		h.logger.Warn().Err(err).Str("target", result.Target).Msg("streaming copy interrupted")
	}

	h.finish(req, result, fetch.Status, written, time.Since(start).Milliseconds(), "other")
}

// finish records metering and metrics for a completed response.
func (h *ProxyHandler) finish(req proxy.Request, result app.HandleResult, status int, bytes, latencyMs int64, content string) {
	h.service.RecordSuccess(result.Auth, result.Target, req.Method,
		result.Fetch.ContentType, req.UserAgent, status, bytes, latencyMs)

	if h.metrics != nil {
		h.metrics.BytesProxied.WithLabelValues(string(req.Mode), content).Add(float64(bytes))
	}
	h.countRequest(req.Mode, status)

	h.logger.Info().
		Str("mode", string(req.Mode)).
		Str("method", req.Method).
		Str("target", result.Target).
		Int("status", status).
		Int64("bytes", bytes).
		Int64("latency_ms", latencyMs).
		Str("trace_id", req.TraceID).
		Msg("proxied request")
}

func (h *ProxyHandler) logDenied(req proxy.Request, e *proxy.ErrorResponse) {
	h.logger.Warn().
		Str("mode", string(req.Mode)).
		Str("session_id", req.SessionID).
		Str("target", req.TargetURL).
		Int("error_status", e.Status).
		Str("error_code", e.Code).
		Str("trace_id", req.TraceID).
		Msg("proxy request denied")

	if h.metrics != nil && e.Status == http.StatusUnauthorized {
		h.metrics.QuotaDenials.WithLabelValues(e.Code).Inc()
	}
}

func (h *ProxyHandler) countRequest(mode proxy.Mode, status int) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(string(mode), metrics.StatusLabel(status)).Inc()
}

func (h *ProxyHandler) writeUsageHint(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(UsageHint{
		Message: "browsegate proxy endpoint",
		Usage:   "GET /proxy-service/{sessionId}/{encoded-target-url} or /proxy-service?url={target}",
		Example: "/proxy-service?url=https://example.com",
	})
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, mode proxy.Mode, e *proxy.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Proxy-Status", "error")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(errorBody{
		Error:     e.Message,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	h.countRequest(mode, e.Status)
}

// extractHeaders copies inbound headers into a plain map. Outbound
// sanitization happens later against this map; hop-by-hop headers are
// dropped here because they never make sense beyond this connection.
func extractHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if isHopByHop(k) {
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// extractIP extracts the client IP from the request.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// HealthHandler provides liveness and readiness endpoints.
type HealthHandler struct {
	ready func(ctx context.Context) error
}

// NewHealthHandler creates a health handler. ready may be nil, in which
// case readiness always succeeds.
func NewHealthHandler(ready func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks whether the store is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.ready != nil {
		if err := h.ready(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Version returns the service version.
func Version(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": version,
			"service": "browsegate",
		})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // overrides promhttp when set
	Version        string
	RequestTimeout time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(proxyHandler *ProxyHandler, healthHandler *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", healthHandler.Liveness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/version", Version(cfg.Version))

	// The proxy endpoint: query-driven modes on the bare path, the
	// session-addressed form below it. Wildcard so percent-encoded
	// targets with embedded slashes reach the handler intact.
	r.HandleFunc("/"+proxy.RouteMarker, proxyHandler.ServeHTTP)
	r.HandleFunc("/"+proxy.RouteMarker+"/*", proxyHandler.ServeHTTP)

	return r
}

// NewMetricsMiddleware records in-flight gauge and request durations.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.RequestDuration.
				WithLabelValues("all", metrics.StatusLabel(ww.Status())).
				Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware logs HTTP requests at debug level.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
