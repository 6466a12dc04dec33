// Package headers holds the allow/deny tables and pure sanitize
// functions applied to proxied request and response header sets.
// Keeping the lists as named tables (rather than literals scattered
// through the pipeline) makes the header invariants directly testable.
package headers

import (
	"strconv"
	"strings"
)

// DefaultUserAgent is sent upstream when the caller supplied none.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RequestAllowList names the only caller headers forwarded upstream.
var RequestAllowList = []string{
	"accept",
	"accept-language",
	"cache-control",
	"content-type",
	"user-agent",
}

// RequestDropList names headers that identify the caller or the proxy
// and must never reach the target, allow-list aside.
var RequestDropList = []string{
	"host",
	"origin",
	"referer",
}

// ResponseAllowList names the only upstream headers copied back to the
// caller.
var ResponseAllowList = []string{
	"content-type",
	"content-encoding",
	"content-language",
	"cache-control",
	"expires",
	"last-modified",
	"etag",
}

// ResponseDenyList names security headers excluded unconditionally,
// even if a future edit were to add them to the allow list.
var ResponseDenyList = []string{
	"content-security-policy",
	"x-frame-options",
	"x-content-type-options",
	"strict-transport-security",
	"permissions-policy",
	"feature-policy",
}

// frameBlockers are deleted from the outgoing set one more time after
// the allow-list copy. Redundant with ResponseDenyList on purpose.
var frameBlockers = []string{
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Permissions-Policy",
	"Feature-Policy",
}

// ReplacementCSP is the permissive policy installed in place of the
// upstream's. It allows the rewritten page to load and run its own
// resources cross-origin and to be framed by the embedding caller.
const ReplacementCSP = "default-src * 'unsafe-inline' 'unsafe-eval' data: blob:; " +
	"script-src * 'unsafe-inline' 'unsafe-eval'; " +
	"style-src * 'unsafe-inline'; " +
	"img-src * data: blob:; " +
	"media-src * data: blob:; " +
	"font-src * data:; " +
	"connect-src *; " +
	"frame-src *; " +
	"frame-ancestors *"

// SanitizeRequest reduces caller headers to the outbound allow list,
// drops identifying headers, and guarantees a desktop User-Agent.
// This is a PURE function; the input map is not mutated.
func SanitizeRequest(in map[string]string) map[string]string {
	out := make(map[string]string, len(RequestAllowList))
	for k, v := range in {
		lower := strings.ToLower(k)
		if contains(RequestDropList, lower) {
			continue
		}
		if contains(RequestAllowList, lower) && v != "" {
			out[canonical(lower)] = v
		}
	}
	if out["User-Agent"] == "" {
		out["User-Agent"] = DefaultUserAgent
	}
	return out
}

// SanitizeResponse copies allow-listed upstream headers, strips the
// deny list, deletes frame-blocking headers once more, then installs
// the replacement CSP and diagnostic headers. responseTimeMs is the
// pipeline latency reported to the caller.
func SanitizeResponse(in map[string]string, responseTimeMs int64) map[string]string {
	out := make(map[string]string, len(ResponseAllowList)+3)
	for k, v := range in {
		lower := strings.ToLower(k)
		if contains(ResponseDenyList, lower) {
			continue
		}
		if contains(ResponseAllowList, lower) && v != "" {
			out[canonical(lower)] = v
		}
	}

	// Defense in depth against a future allow-list bug.
	for _, k := range frameBlockers {
		delete(out, k)
	}

	out["Content-Security-Policy"] = ReplacementCSP
	out["X-Proxy-Status"] = "success"
	out["X-Response-Time"] = strconv.FormatInt(responseTimeMs, 10)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// canonical converts a lower-cased header name to its canonical
// Header-Case form (etag stays ETag by special case).
func canonical(lower string) string {
	if lower == "etag" {
		return "ETag"
	}
	parts := strings.Split(lower, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
