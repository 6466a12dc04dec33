// Package usage provides the append-only usage log entry type and its
// constructors. Entries are immutable once written: the log sink never
// updates or deletes them.
package usage

import "time"

// EventType categorizes a usage log entry.
type EventType string

const (
	EventPageRequest  EventType = "page_request"
	EventError        EventType = "error"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventDataTransfer EventType = "data_transfer"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPageRequest, EventError, EventSessionStart, EventSessionEnd, EventDataTransfer:
		return true
	}
	return false
}

// Entry is one record of a proxied request or pipeline error
// (immutable value type).
type Entry struct {
	ID               string
	SessionID        string
	UserID           string
	EventType        EventType
	TargetURL        string // empty when the event has no target
	BytesTransferred int64
	ResponseTimeMs   int64
	StatusCode       int // 0 when the event has no HTTP status
	Metadata         map[string]string
	CreatedAt        time.Time
}

// NewPageRequest builds the entry recorded after a successful metered
// fetch. bytes is the transmitted (post-rewrite) byte count.
func NewPageRequest(id, sessionID, userID, targetURL, method, contentType, userAgent string,
	statusCode int, bytes, latencyMs int64, at time.Time) Entry {
	return Entry{
		ID:               id,
		SessionID:        sessionID,
		UserID:           userID,
		EventType:        EventPageRequest,
		TargetURL:        targetURL,
		BytesTransferred: bytes,
		ResponseTimeMs:   latencyMs,
		StatusCode:       statusCode,
		Metadata: map[string]string{
			"method":       method,
			"content_type": contentType,
			"user_agent":   userAgent,
		},
		CreatedAt: at,
	}
}

// NewError builds the entry attempted on any pipeline failure. Best
// effort only: a failed write is swallowed by the recorder.
func NewError(id, sessionID, userID, targetURL, method, message string, at time.Time) Entry {
	return Entry{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		EventType: EventError,
		TargetURL: targetURL,
		Metadata: map[string]string{
			"method": method,
			"error":  message,
		},
		CreatedAt: at,
	}
}

// NewSessionEnd builds the entry recorded when the quota guard expires
// a session.
func NewSessionEnd(id, sessionID, userID, reason string, at time.Time) Entry {
	return Entry{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		EventType: EventSessionEnd,
		Metadata:  map[string]string{"reason": reason},
		CreatedAt: at,
	}
}
