package memory

import (
	"context"
	"testing"
	"time"

	"github.com/browsegate/browsegate/domain/usage"
)

func TestUsageLogAppendAndRecent(t *testing.T) {
	l := NewUsageLog()
	ctx := context.Background()

	for i, sess := range []string{"a", "b", "a"} {
		e := usage.NewPageRequest("id", sess, "user", "https://example.com", "GET", "text/html", "",
			200, int64(i), 1, time.Now())
		if err := l.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.Recent(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("entries = %d", len(all))
	}
	// Newest first.
	if all[0].BytesTransferred != 2 {
		t.Errorf("order wrong: %+v", all)
	}

	filtered, _ := l.Recent(ctx, "a", 0)
	if len(filtered) != 2 {
		t.Errorf("filtered = %d, want 2", len(filtered))
	}

	limited, _ := l.Recent(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}
}

func TestUsageLogFailing(t *testing.T) {
	l := NewUsageLog()
	l.SetFailing(true)

	err := l.Append(context.Background(), usage.Entry{ID: "x"})
	if err == nil {
		t.Fatal("expected append error")
	}

	l.SetFailing(false)
	if err := l.Append(context.Background(), usage.Entry{ID: "y"}); err != nil {
		t.Fatal(err)
	}
	if got := len(l.Drain()); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}
