package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/browsegate/browsegate/domain/usage"
	"github.com/browsegate/browsegate/ports"
)

var errAppendFailed = errors.New("usage log append failed")

// UsageLog is an in-memory implementation of ports.UsageLog.
type UsageLog struct {
	mu      sync.RWMutex
	entries []usage.Entry
	failing bool
}

// NewUsageLog creates an empty in-memory usage log.
func NewUsageLog() *UsageLog {
	return &UsageLog{}
}

// SetFailing makes Append return an error (tests the fire-and-forget
// isolation of the recorder).
func (l *UsageLog) SetFailing(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing = fail
}

// Append stores one entry.
func (l *UsageLog) Append(ctx context.Context, e usage.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return errAppendFailed
	}
	l.entries = append(l.entries, e)
	return nil
}

// Recent returns the newest entries, optionally filtered by session id.
func (l *UsageLog) Recent(ctx context.Context, sessionID string, limit int) ([]usage.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []usage.Entry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if sessionID == "" || l.entries[i].SessionID == sessionID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

// Drain returns all entries and clears the log (test inspection).
func (l *UsageLog) Drain() []usage.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries
	l.entries = nil
	return entries
}

// Ensure interface compliance.
var _ ports.UsageLog = (*UsageLog)(nil)
