package proxy

import (
	"net/url"
	"testing"
)

func TestClassifyAuthenticatedPath(t *testing.T) {
	c, errResp := Classify("/proxy-service/sess-1/https%3A%2F%2Fexample.com%2Fpage", url.Values{})
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeAuthenticated {
		t.Errorf("mode = %s, want %s", c.Mode, ModeAuthenticated)
	}
	if c.SessionID != "sess-1" {
		t.Errorf("session = %q, want sess-1", c.SessionID)
	}
	if c.TargetURL != "https://example.com/page" {
		t.Errorf("target = %q, want https://example.com/page", c.TargetURL)
	}
}

func TestClassifyAuthenticatedMultiSegmentTail(t *testing.T) {
	// Unencoded slashes split the target across path segments; they must
	// be rejoined before decoding.
	c, errResp := Classify("/proxy-service/sess-1/https:%2F%2Fexample.com/a/b", url.Values{})
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.TargetURL != "https://example.com/a/b" {
		t.Errorf("target = %q, want https://example.com/a/b", c.TargetURL)
	}
}

func TestClassifyAuthenticatedMissingTarget(t *testing.T) {
	c, errResp := Classify("/proxy-service/sess-1", url.Values{})
	if errResp == nil {
		t.Fatal("expected error for session without target")
	}
	if errResp.Code != ErrMissingTarget.Code {
		t.Errorf("code = %s, want %s", errResp.Code, ErrMissingTarget.Code)
	}
	if c.Mode != ModeAuthenticated {
		t.Errorf("mode = %s, want %s", c.Mode, ModeAuthenticated)
	}
}

func TestClassifySimple(t *testing.T) {
	q := url.Values{"url": {"https://example.com"}}
	c, errResp := Classify("/proxy-service", q)
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeSimple {
		t.Errorf("mode = %s, want %s", c.Mode, ModeSimple)
	}
	if c.SessionID != "" {
		t.Errorf("session = %q, want empty", c.SessionID)
	}
	if c.TargetURL != "https://example.com" {
		t.Errorf("target = %q", c.TargetURL)
	}
}

func TestClassifyLegacy(t *testing.T) {
	q := url.Values{"session": {"sess-9"}, "target": {"https://example.com"}}
	c, errResp := Classify("/proxy-service", q)
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeLegacy {
		t.Errorf("mode = %s, want %s", c.Mode, ModeLegacy)
	}
	if c.SessionID != "sess-9" || c.TargetURL != "https://example.com" {
		t.Errorf("got session=%q target=%q", c.SessionID, c.TargetURL)
	}
}

func TestClassifyLegacySessionWithoutTarget(t *testing.T) {
	q := url.Values{"session": {"sess-9"}}
	_, errResp := Classify("/proxy-service", q)
	if errResp == nil || errResp.Code != ErrMissingTarget.Code {
		t.Fatalf("expected missing target error, got %v", errResp)
	}
}

func TestClassifyLegacyTargetWithoutSession(t *testing.T) {
	// Target without session is still legacy form; the guard simply has
	// nothing to meter.
	q := url.Values{"target": {"https://example.com"}}
	c, errResp := Classify("/proxy-service", q)
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeLegacy || c.SessionID != "" {
		t.Errorf("got mode=%s session=%q", c.Mode, c.SessionID)
	}
}

func TestClassifyEmpty(t *testing.T) {
	c, errResp := Classify("/proxy-service", url.Values{})
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeEmpty {
		t.Errorf("mode = %s, want %s", c.Mode, ModeEmpty)
	}
}

func TestClassifySimpleTakesPrecedenceOverLegacy(t *testing.T) {
	q := url.Values{
		"url":     {"https://simple.example.com"},
		"session": {"sess-1"},
		"target":  {"https://legacy.example.com"},
	}
	c, errResp := Classify("/proxy-service", q)
	if errResp != nil {
		t.Fatalf("unexpected error: %v", errResp)
	}
	if c.Mode != ModeSimple || c.TargetURL != "https://simple.example.com" {
		t.Errorf("got mode=%s target=%q", c.Mode, c.TargetURL)
	}
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"absolute https", "https://example.com/page", "https://example.com/page", ""},
		{"absolute http kept", "http://example.com", "http://example.com", ""},
		{"scheme defaulted", "example.com/path", "https://example.com/path", ""},
		{"localhost allowed", "localhost:3000", "https://localhost:3000", ""},
		{"bare word rejected", "not-a-valid-url", "", ErrInvalidURL.Code},
		{"empty", "", "", ErrMissingTarget.Code},
		{"whitespace only", "   ", "", ErrMissingTarget.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errResp := NormalizeTarget(tt.in)
			if tt.wantErr != "" {
				if errResp == nil || errResp.Code != tt.wantErr {
					t.Fatalf("error = %v, want code %s", errResp, tt.wantErr)
				}
				return
			}
			if errResp != nil {
				t.Fatalf("unexpected error: %v", errResp)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeMetered(t *testing.T) {
	if ModeSimple.Metered() || ModeEmpty.Metered() {
		t.Error("simple and empty modes must not be metered")
	}
	if !ModeAuthenticated.Metered() || !ModeLegacy.Metered() {
		t.Error("authenticated and legacy modes must be metered")
	}
}
