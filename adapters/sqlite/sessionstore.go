package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/ports"
)

// SessionStore implements ports.SessionStore using SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// GetActiveSession retrieves a session by id.
func (s *SessionStore) GetActiveSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, target_domain, status, started_at, ended_at,
		       bytes_transferred, requests_count, last_activity_at, error_message, metadata
		FROM proxy_sessions
		WHERE id = ?
	`, id)

	return scanSession(row)
}

// GetUserQuota retrieves the owning user's remaining entitlement.
func (s *SessionStore) GetUserQuota(ctx context.Context, userID string) (session.Quota, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, balance_minutes, subscription_status
		FROM user_quotas
		WHERE user_id = ?
	`, userID)

	var q session.Quota
	var sub string
	err := row.Scan(&q.UserID, &q.BalanceMinutes, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Quota{}, ports.ErrNotFound
	}
	if err != nil {
		return session.Quota{}, err
	}
	q.Subscription = session.SubscriptionStatus(sub)
	return q, nil
}

// ExpireSession transitions an active session to expired. The status
// guard in the WHERE clause makes the transition a single atomic
// conditional update: an already-terminal session is untouched, so
// ended_at is written at most once.
func (s *SessionStore) ExpireSession(ctx context.Context, id, reason string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proxy_sessions
		SET status = ?, ended_at = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, string(session.StatusExpired), at.UTC(), reason, id, string(session.StatusActive))
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		// Either missing or already terminal; distinguish for callers.
		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM proxy_sessions WHERE id = ?`, id)
		if err := row.Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
	}
	return nil
}

// IncrementSessionMetrics atomically adds to the session counters.
// Single conditional UPDATE so concurrent requests on the same session
// never lose increments; non-active sessions are left untouched.
func (s *SessionStore) IncrementSessionMetrics(ctx context.Context, id string, bytes, latencyMs int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proxy_sessions
		SET bytes_transferred = bytes_transferred + ?,
		    requests_count = requests_count + 1,
		    last_activity_at = ?
		WHERE id = ? AND status = ?
	`, bytes, at.UTC(), id, string(session.StatusActive))
	return err
}

// CreateSession inserts a session row. The issuance service owns
// creation in production; this is used by the CLI and tests.
func (s *SessionStore) CreateSession(ctx context.Context, sess session.Session) error {
	meta, err := json.Marshal(orEmpty(sess.Metadata))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proxy_sessions
			(id, user_id, target_domain, status, started_at, ended_at,
			 bytes_transferred, requests_count, last_activity_at, error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.UserID, sess.TargetDomain, string(sess.Status),
		sess.StartedAt.UTC(), nullTime(sess.EndedAt),
		sess.BytesTransferred, sess.RequestsCount, sess.LastActivityAt.UTC(),
		sess.ErrorMessage, string(meta))
	return err
}

// UpsertQuota inserts or replaces a user quota row (CLI and tests).
func (s *SessionStore) UpsertQuota(ctx context.Context, q session.Quota) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_quotas (user_id, balance_minutes, subscription_status)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance_minutes = excluded.balance_minutes,
			subscription_status = excluded.subscription_status
	`, q.UserID, q.BalanceMinutes, string(q.Subscription))
	return err
}

// ListSessions returns sessions ordered newest-first (CLI).
func (s *SessionStore) ListSessions(ctx context.Context, limit int) ([]session.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, target_domain, status, started_at, ended_at,
		       bytes_transferred, requests_count, last_activity_at, error_message, metadata
		FROM proxy_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TerminateSession moves an active session to terminated (explicit
// user action via the CLI). Same conditional-update shape as expire.
func (s *SessionStore) TerminateSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proxy_sessions
		SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, string(session.StatusTerminated), at.UTC(), id, string(session.StatusActive))
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (session.Session, error) {
	sess, err := scanSessionRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ports.ErrNotFound
	}
	return sess, err
}

func scanSessionRows(row rowScanner) (session.Session, error) {
	var sess session.Session
	var status, meta string
	var endedAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.TargetDomain, &status,
		&sess.StartedAt, &endedAt,
		&sess.BytesTransferred, &sess.RequestsCount, &sess.LastActivityAt,
		&sess.ErrorMessage, &meta,
	)
	if err != nil {
		return session.Session{}, err
	}

	sess.Status = session.Status(status)
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if meta != "" && meta != "{}" {
		_ = json.Unmarshal([]byte(meta), &sess.Metadata)
	}
	return sess, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Ensure interface compliance.
var _ ports.SessionStore = (*SessionStore)(nil)
