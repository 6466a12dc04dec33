package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/ports"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSession(t *testing.T, store *SessionStore, id, userID string, status session.Status) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	sess := session.Session{
		ID:             id,
		UserID:         userID,
		Status:         status,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	seedSession(t, store, "sess-1", "user-1", session.StatusActive)

	got, err := store.GetActiveSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "user-1" || got.Status != session.StatusActive {
		t.Errorf("session = %+v", got)
	}
	if got.EndedAt != nil {
		t.Error("new session must have no ended_at")
	}

	_, err = store.GetActiveSession(ctx, "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQuotaUpsert(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	q := session.Quota{UserID: "user-1", BalanceMinutes: 60, Subscription: session.SubscriptionFree}
	if err := store.UpsertQuota(ctx, q); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetUserQuota(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.BalanceMinutes != 60 {
		t.Errorf("balance = %d", got.BalanceMinutes)
	}

	// Upsert replaces.
	q.BalanceMinutes = 0
	q.Subscription = session.SubscriptionActive
	if err := store.UpsertQuota(ctx, q); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetUserQuota(ctx, "user-1")
	if got.BalanceMinutes != 0 || got.Subscription != session.SubscriptionActive {
		t.Errorf("quota = %+v", got)
	}

	_, err = store.GetUserQuota(ctx, "ghost")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExpireSessionConditional(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	seedSession(t, store, "sess-1", "user-1", session.StatusActive)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.ExpireSession(ctx, "sess-1", "Insufficient time balance", first); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetActiveSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != session.StatusExpired {
		t.Errorf("status = %s", got.Status)
	}
	if got.ErrorMessage != "Insufficient time balance" {
		t.Errorf("reason = %q", got.ErrorMessage)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(first) {
		t.Errorf("ended_at = %v", got.EndedAt)
	}

	// Second expire is a no-op on the terminal row.
	if err := store.ExpireSession(ctx, "sess-1", "other", first.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetActiveSession(ctx, "sess-1")
	if !got.EndedAt.Equal(first) || got.ErrorMessage != "Insufficient time balance" {
		t.Errorf("terminal row was rewritten: %+v", got)
	}
}

func TestExpireSessionMissingRow(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)

	err := store.ExpireSession(context.Background(), "missing", "r", time.Now().UTC())
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIncrementMetricsConditional(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	seedSession(t, store, "sess-1", "user-1", session.StatusActive)

	at := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		if err := store.IncrementSessionMetrics(ctx, "sess-1", 512, 20, at); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := store.GetActiveSession(ctx, "sess-1")
	if got.BytesTransferred != 1024 || got.RequestsCount != 2 {
		t.Errorf("counters = bytes %d requests %d", got.BytesTransferred, got.RequestsCount)
	}

	// Terminal session stops accumulating.
	if err := store.ExpireSession(ctx, "sess-1", "done", at); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementSessionMetrics(ctx, "sess-1", 512, 20, at); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetActiveSession(ctx, "sess-1")
	if got.BytesTransferred != 1024 {
		t.Errorf("terminal session accumulated bytes: %d", got.BytesTransferred)
	}
}

func TestTerminateSession(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	seedSession(t, store, "sess-1", "user-1", session.StatusActive)

	if err := store.TerminateSession(ctx, "sess-1", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetActiveSession(ctx, "sess-1")
	if got.Status != session.StatusTerminated {
		t.Errorf("status = %s", got.Status)
	}

	// Already terminal: conditional update affects no rows.
	err := store.TerminateSession(ctx, "sess-1", time.Now().UTC())
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"sess-old", "sess-mid", "sess-new"} {
		sess := session.Session{
			ID:             id,
			UserID:         "user-1",
			Status:         session.StatusActive,
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
			LastActivityAt: base,
		}
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}

	sessions, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "sess-new" || sessions[1].ID != "sess-mid" {
		t.Errorf("order = %s, %s", sessions[0].ID, sessions[1].ID)
	}
}
