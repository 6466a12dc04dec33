package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/browsegate/browsegate/domain/session"
	"github.com/browsegate/browsegate/ports"
)

func activeSession(id, userID string) session.Session {
	return session.Session{
		ID:     id,
		UserID: userID,
		Status: session.StatusActive,
	}
}

func TestSessionStoreGet(t *testing.T) {
	s := NewSessionStore()
	s.PutSession(activeSession("sess-1", "user-1"))

	got, err := s.GetActiveSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "user-1" {
		t.Errorf("user = %q", got.UserID)
	}

	_, err = s.GetActiveSession(context.Background(), "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionStoreQuota(t *testing.T) {
	s := NewSessionStore()
	s.PutQuota(session.Quota{UserID: "user-1", BalanceMinutes: 15, Subscription: session.SubscriptionFree})

	q, err := s.GetUserQuota(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if q.BalanceMinutes != 15 {
		t.Errorf("balance = %d", q.BalanceMinutes)
	}

	_, err = s.GetUserQuota(context.Background(), "ghost")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExpireSessionIdempotent(t *testing.T) {
	s := NewSessionStore()
	s.PutSession(activeSession("sess-1", "user-1"))

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.ExpireSession(context.Background(), "sess-1", "out of balance", first); err != nil {
		t.Fatal(err)
	}

	sess, _ := s.Session("sess-1")
	if sess.Status != session.StatusExpired || sess.ErrorMessage != "out of balance" {
		t.Errorf("session = %+v", sess)
	}

	// A second expire must not rewrite ended_at or the reason.
	if err := s.ExpireSession(context.Background(), "sess-1", "other reason", first.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.Session("sess-1")
	if !sess.EndedAt.Equal(first) || sess.ErrorMessage != "out of balance" {
		t.Errorf("terminal session was rewritten: %+v", sess)
	}
}

func TestExpireSessionMissing(t *testing.T) {
	s := NewSessionStore()
	err := s.ExpireSession(context.Background(), "missing", "r", time.Now())
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIncrementSessionMetrics(t *testing.T) {
	s := NewSessionStore()
	s.PutSession(activeSession("sess-1", "user-1"))

	at := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.IncrementSessionMetrics(context.Background(), "sess-1", 100, 10, at); err != nil {
			t.Fatal(err)
		}
	}

	sess, _ := s.Session("sess-1")
	if sess.BytesTransferred != 300 || sess.RequestsCount != 3 {
		t.Errorf("counters = bytes %d requests %d", sess.BytesTransferred, sess.RequestsCount)
	}
}

func TestIncrementSkipsTerminalSessions(t *testing.T) {
	s := NewSessionStore()
	s.PutSession(activeSession("sess-1", "user-1"))
	s.ExpireSession(context.Background(), "sess-1", "done", time.Now())

	if err := s.IncrementSessionMetrics(context.Background(), "sess-1", 100, 10, time.Now()); err != nil {
		t.Fatal(err)
	}

	sess, _ := s.Session("sess-1")
	if sess.BytesTransferred != 0 || sess.RequestsCount != 0 {
		t.Error("terminal sessions must not accumulate metrics")
	}
}
