package usage

import (
	"testing"
	"time"
)

func TestEventTypeValid(t *testing.T) {
	for _, et := range []EventType{EventPageRequest, EventError, EventSessionStart, EventSessionEnd, EventDataTransfer} {
		if !et.Valid() {
			t.Errorf("%s must be valid", et)
		}
	}
	if EventType("login").Valid() {
		t.Error("unknown event type must be invalid")
	}
}

func TestNewPageRequest(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewPageRequest("id-1", "sess-1", "user-1",
		"https://example.com", "GET", "text/html", "Agent/1.0",
		200, 4096, 150, at)

	if e.EventType != EventPageRequest {
		t.Errorf("event type = %s", e.EventType)
	}
	if e.BytesTransferred != 4096 || e.ResponseTimeMs != 150 || e.StatusCode != 200 {
		t.Errorf("numeric fields wrong: %+v", e)
	}
	if e.Metadata["method"] != "GET" || e.Metadata["content_type"] != "text/html" {
		t.Errorf("metadata wrong: %v", e.Metadata)
	}
	if !e.CreatedAt.Equal(at) {
		t.Errorf("created at = %v", e.CreatedAt)
	}
}

func TestNewError(t *testing.T) {
	e := NewError("id-2", "sess-1", "user-1", "https://example.com", "GET", "boom", time.Now())
	if e.EventType != EventError {
		t.Errorf("event type = %s", e.EventType)
	}
	if e.Metadata["error"] != "boom" {
		t.Errorf("metadata = %v", e.Metadata)
	}
	if e.StatusCode != 0 || e.BytesTransferred != 0 {
		t.Error("error entries carry no transfer stats")
	}
}

func TestNewSessionEnd(t *testing.T) {
	e := NewSessionEnd("id-3", "sess-1", "user-1", "Insufficient time balance", time.Now())
	if e.EventType != EventSessionEnd {
		t.Errorf("event type = %s", e.EventType)
	}
	if e.Metadata["reason"] != "Insufficient time balance" {
		t.Errorf("metadata = %v", e.Metadata)
	}
}
