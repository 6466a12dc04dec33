// Package proxy provides request/response value types for the proxy pipeline.
package proxy

// Mode identifies how a proxy request was addressed.
type Mode string

const (
	// ModeSimple is the unauthenticated, unmetered passthrough driven by
	// a bare ?url= parameter. Intentionally keeps a no-login demo path.
	ModeSimple Mode = "simple"

	// ModeAuthenticated is the session-bound, metered path:
	// /proxy-service/{sessionId}/{percent-encoded target}.
	ModeAuthenticated Mode = "authenticated"

	// ModeLegacy is the query-parameter form of authenticated mode
	// (?session=...&target=...). Same semantics as ModeAuthenticated.
	ModeLegacy Mode = "legacy"

	// ModeEmpty is the benign empty state: no session, no target.
	// The endpoint replies with a usage hint instead of an error.
	ModeEmpty Mode = "empty"
)

// Metered reports whether requests in this mode count against a session.
func (m Mode) Metered() bool {
	return m == ModeAuthenticated || m == ModeLegacy
}

// Request represents a classified inbound proxy request (value type).
type Request struct {
	Mode      Mode
	SessionID string
	TargetURL string

	// Original HTTP details, forwarded subject to header sanitization.
	Method  string
	Headers map[string]string
	Body    []byte

	// Metadata for logging and audit.
	RemoteIP  string
	UserAgent string
	TraceID   string
}

// Response represents the buffered outcome of a proxied fetch (value type).
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte

	// Metadata for metering and logging.
	LatencyMs    int64
	ContentType  string
	Rewritten    bool // body was HTML and passed through the rewriter
	UpstreamAddr string
}

// ErrorResponse represents an error to return to the client (value type).
type ErrorResponse struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface so pipeline failures can be
// wrapped and logged uniformly.
func (e *ErrorResponse) Error() string {
	return e.Code + ": " + e.Message
}

// Pipeline error table. Statuses follow the contract: classification
// and upstream failures are 400, authorization/quota failures are 401.
var (
	ErrMissingTarget = ErrorResponse{
		Status:  400,
		Code:    "missing_target_url",
		Message: "Target URL is required",
	}
	ErrInvalidURL = ErrorResponse{
		Status:  400,
		Code:    "invalid_url_format",
		Message: "Target URL is not a valid absolute URL",
	}
	ErrSessionInvalid = ErrorResponse{
		Status:  401,
		Code:    "session_invalid_or_expired",
		Message: "Session is invalid or has expired",
	}
	ErrUserNotFound = ErrorResponse{
		Status:  401,
		Code:    "user_not_found",
		Message: "Owning user account not found",
	}
	ErrInsufficientBalance = ErrorResponse{
		Status:  401,
		Code:    "insufficient_balance",
		Message: "Insufficient time balance",
	}
	ErrUpstreamFetch = ErrorResponse{
		Status:  400,
		Code:    "upstream_fetch_failure",
		Message: "Failed to fetch the target URL",
	}
)
