package proxy

import (
	"net/url"
	"strings"
)

// RouteMarker is the fixed path segment that anchors authenticated-mode
// requests: /<marker>/{sessionId}/{percent-encoded target}.
const RouteMarker = "proxy-service"

// Classified is the outcome of request classification (value type).
type Classified struct {
	Mode      Mode
	SessionID string
	TargetURL string
}

// Classify parses an inbound request into a {mode, sessionId, target}
// triple. escapedPath must be the raw (still percent-encoded) URL path
// so that encoded slashes inside the target survive until the single
// decode below. Returns ErrMissingTarget when a session id is present
// without a target; the no-session no-target case is ModeEmpty, not an
// error.
func Classify(escapedPath string, query url.Values) (Classified, *ErrorResponse) {
	// Authenticated mode: path segments after the route marker. The
	// tail may contain further '/'-delimited segments; rejoin them
	// before a single percent-decode so targets containing encoded
	// slashes round-trip.
	if sessionID, tail, ok := splitAfterMarker(escapedPath); ok {
		if tail == "" {
			return Classified{Mode: ModeAuthenticated, SessionID: sessionID}, &ErrMissingTarget
		}
		target, err := url.PathUnescape(tail)
		if err != nil {
			return Classified{Mode: ModeAuthenticated, SessionID: sessionID}, &ErrInvalidURL
		}
		return Classified{Mode: ModeAuthenticated, SessionID: sessionID, TargetURL: target}, nil
	}

	// Simple mode: bare target in the url parameter, no session.
	if target := query.Get("url"); target != "" {
		return Classified{Mode: ModeSimple, TargetURL: target}, nil
	}

	// Legacy mode: session and target as query parameters, both
	// optional, same semantics as authenticated mode.
	sessionID := query.Get("session")
	target := query.Get("target")
	if sessionID != "" && target == "" {
		return Classified{Mode: ModeLegacy, SessionID: sessionID}, &ErrMissingTarget
	}
	if target != "" {
		return Classified{Mode: ModeLegacy, SessionID: sessionID, TargetURL: target}, nil
	}

	// No session, no target: benign empty state.
	return Classified{Mode: ModeEmpty}, nil
}

// splitAfterMarker extracts the session id and the rejoined target tail
// from an escaped path of the form .../<RouteMarker>/{sessionId}/{tail...}.
func splitAfterMarker(escapedPath string) (sessionID, tail string, ok bool) {
	segs := strings.Split(strings.Trim(escapedPath, "/"), "/")
	for i, seg := range segs {
		if seg != RouteMarker {
			continue
		}
		rest := segs[i+1:]
		if len(rest) == 0 || rest[0] == "" {
			return "", "", false
		}
		sessionID, err := url.PathUnescape(rest[0])
		if err != nil || sessionID == "" {
			return "", "", false
		}
		return sessionID, strings.Join(rest[1:], "/"), true
	}
	return "", "", false
}

// NormalizeTarget validates and normalizes a target URL. The scheme
// defaults to https when missing. Hosts without a dot (and not
// localhost) are rejected: a bare word is a mistyped target, not a
// fetchable origin.
func NormalizeTarget(raw string) (string, *ErrorResponse) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ErrMissingTarget
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", &ErrInvalidURL
	}
	host := u.Hostname()
	if !strings.Contains(host, ".") && host != "localhost" {
		return "", &ErrInvalidURL
	}
	return u.String(), nil
}
