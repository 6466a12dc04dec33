// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/browsegate/browsegate/domain/proxy"
	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/domain/usage"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Session / Quota Store Port
// -----------------------------------------------------------------------------

// SessionStore is the client view of the external session/quota store.
// The proxy core reads sessions and balances, increments counters, and
// expires sessions on quota exhaustion; it never creates sessions.
type SessionStore interface {
	// GetActiveSession retrieves a session by id regardless of status;
	// the caller decides how non-active statuses map to errors.
	GetActiveSession(ctx context.Context, id string) (session.Session, error)

	// GetUserQuota retrieves the owning user's remaining entitlement.
	GetUserQuota(ctx context.Context, userID string) (session.Quota, error)

	// ExpireSession transitions an active session to expired, recording
	// ended_at and the reason. Idempotent: expiring an already-terminal
	// session is a no-op and must not rewrite ended_at.
	ExpireSession(ctx context.Context, id, reason string, at time.Time) error

	// IncrementSessionMetrics atomically adds to bytes_transferred and
	// requests_count and updates last_activity_at. Increments apply
	// only while the session is active; a conditional update avoids
	// lost updates under concurrent requests on the same session.
	IncrementSessionMetrics(ctx context.Context, id string, bytes, latencyMs int64, at time.Time) error
}

// -----------------------------------------------------------------------------
// Usage Log Ports
// -----------------------------------------------------------------------------

// UsageLog is the append-only audit sink. Entries are never updated or
// deleted by this core.
type UsageLog interface {
	// Append writes one entry.
	Append(ctx context.Context, e usage.Entry) error

	// Recent returns the newest entries, optionally filtered by session
	// id (empty matches all). Used by the operational CLI.
	Recent(ctx context.Context, sessionID string, limit int) ([]usage.Entry, error)
}

// UsageRecorder accepts usage entries for asynchronous processing.
// Recording is fire-and-forget: failures are diagnosed locally and
// never propagate to the response path.
type UsageRecorder interface {
	// Record queues an entry. Non-blocking.
	Record(e usage.Entry)

	// Flush forces immediate processing of queued entries.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining entries.
	Close() error
}

// -----------------------------------------------------------------------------
// Upstream Port
// -----------------------------------------------------------------------------

// FetchResult is the streaming outcome of an upstream fetch. Body is
// only read fully into memory when the content type requires the HTML
// rewriter; everything else streams through to the caller.
type FetchResult struct {
	Status      int
	Headers     map[string]string
	ContentType string
	Body        io.ReadCloser // caller must close
	LatencyMs   int64
	FinalURL    string // after redirects
}

// Upstream fetches target pages on behalf of the caller. Requests
// carry an already sanitized header set; redirects are followed
// automatically; failures are not retried at this layer.
type Upstream interface {
	// Fetch issues the outbound request to an absolute target URL.
	Fetch(ctx context.Context, target string, req proxy.Request) (FetchResult, error)
}
