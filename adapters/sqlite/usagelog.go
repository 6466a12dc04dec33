package sqlite

import (
	"context"
	"encoding/json"

	"github.com/browsegate/browsegate/domain/usage"
	"github.com/browsegate/browsegate/ports"
)

// UsageLog implements ports.UsageLog using SQLite. The table is
// append-only: no update or delete statements exist here.
type UsageLog struct {
	db *DB
}

// NewUsageLog creates a new SQLite usage log.
func NewUsageLog(db *DB) *UsageLog {
	return &UsageLog{db: db}
}

// Append writes one entry.
func (l *UsageLog) Append(ctx context.Context, e usage.Entry) error {
	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO usage_logs
			(id, session_id, user_id, event_type, target_url,
			 bytes_transferred, response_time_ms, status_code, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.UserID, string(e.EventType), e.TargetURL,
		e.BytesTransferred, e.ResponseTimeMs, e.StatusCode, string(meta), e.CreatedAt.UTC())
	return err
}

// Recent returns the newest entries, optionally filtered by session id.
func (l *UsageLog) Recent(ctx context.Context, sessionID string, limit int) ([]usage.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, user_id, event_type, target_url,
		       bytes_transferred, response_time_ms, status_code, metadata, created_at
		FROM usage_logs
	`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []usage.Entry
	for rows.Next() {
		var e usage.Entry
		var eventType, meta string
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.UserID, &eventType, &e.TargetURL,
			&e.BytesTransferred, &e.ResponseTimeMs, &e.StatusCode, &meta, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.EventType = usage.EventType(eventType)
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ensure interface compliance.
var _ ports.UsageLog = (*UsageLog)(nil)
