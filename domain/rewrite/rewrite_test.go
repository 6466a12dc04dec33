package rewrite

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHTML(tt.ct); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestRewriteInjectsBase(t *testing.T) {
	in := []byte(`<html><head><title>x</title></head><body>hi</body></html>`)
	out, err := Rewrite(in, mustURL(t, "https://example.com/deep/page"), "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	s := string(out)
	if !strings.Contains(s, `<base href="https://example.com/"`) {
		t.Errorf("base tag missing or wrong origin:\n%s", s)
	}
	// Base must come before the title so it wins for all relative URLs.
	if strings.Index(s, "<base") > strings.Index(s, "<title") {
		t.Error("base tag must be the first child of head")
	}
}

func TestRewriteKeepsExistingBase(t *testing.T) {
	in := []byte(`<html><head><base href="https://original.example.com/"></head><body></body></html>`)
	out, err := Rewrite(in, mustURL(t, "https://example.com"), "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(out), "<base") != 1 {
		t.Errorf("must not inject a second base tag:\n%s", out)
	}
}

func TestRewriteStripsBlockedMeta(t *testing.T) {
	in := []byte(`<html><head>
		<meta http-equiv="X-Frame-Options" content="DENY">
		<meta http-equiv="Content-Security-Policy" content="default-src 'none'">
		<meta http-equiv="refresh" content="30">
		<meta charset="utf-8">
	</head><body></body></html>`)

	out, err := Rewrite(in, mustURL(t, "https://example.com"), "")
	if err != nil {
		t.Fatal(err)
	}

	s := string(out)
	if strings.Contains(s, "X-Frame-Options") || strings.Contains(s, "Content-Security-Policy") {
		t.Errorf("framing meta tags must be removed:\n%s", s)
	}
	if !strings.Contains(s, `http-equiv="refresh"`) {
		t.Error("unrelated meta tags must survive")
	}
	if !strings.Contains(s, `charset="utf-8"`) {
		t.Error("charset meta must survive")
	}
}

func TestRewriteStripsIframeSandbox(t *testing.T) {
	in := []byte(`<html><body><iframe src="/widget" sandbox="allow-scripts" width="10"></iframe></body></html>`)
	out, err := Rewrite(in, mustURL(t, "https://example.com"), "")
	if err != nil {
		t.Fatal(err)
	}

	s := string(out)
	if strings.Contains(s, "sandbox") {
		t.Errorf("sandbox attribute must be stripped:\n%s", s)
	}
	if !strings.Contains(s, `width="10"`) {
		t.Error("other iframe attributes must survive")
	}
}

func TestRewriteInjectsCompatScript(t *testing.T) {
	in := []byte(`<html><head></head><body></body></html>`)
	out, err := Rewrite(in, mustURL(t, "https://example.com"), "sess-42")
	if err != nil {
		t.Fatal(err)
	}

	s := string(out)
	if !strings.Contains(s, compatScriptID) {
		t.Error("compat script marker missing")
	}
	if !strings.Contains(s, "https://example.com") {
		t.Error("true origin missing from injected script")
	}
	if !strings.Contains(s, "sess-42") {
		t.Error("session id missing from injected script")
	}
}

func TestRewriteIdempotent(t *testing.T) {
	in := []byte(`<html><head><title>t</title></head><body><p>content</p></body></html>`)
	target := mustURL(t, "https://example.com")

	once, err := Rewrite(in, target, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Rewrite(once, target, "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(once, twice) {
		t.Error("rewriting a rewritten document must change nothing")
	}
}

func TestRewriteMalformedHTML(t *testing.T) {
	// The parser is tolerant; truncated markup still yields a document.
	in := []byte(`<html><head><body><div><p>unclosed`)
	out, err := Rewrite(in, mustURL(t, "https://example.com"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "unclosed") {
		t.Error("content lost during rewrite")
	}
	if !strings.Contains(string(out), "<base") {
		t.Error("base injection must still happen")
	}
}

func TestCompatScriptSessionRouting(t *testing.T) {
	withSession := CompatScript("https://example.com", "sess-7")
	if !strings.Contains(withSession, "sess-7") {
		t.Error("session id must be substituted")
	}
	if strings.Contains(withSession, "__SESSION_ID__") || strings.Contains(withSession, "__TRUE_ORIGIN__") {
		t.Error("template placeholders must not survive substitution")
	}

	// The cross-frame bridge accepts structured commands only.
	if strings.Contains(withSession, "eval(") {
		t.Error("injected script must not contain eval")
	}
	for _, cmd := range []string{"navigate", "reload", "scrollTo"} {
		if !strings.Contains(withSession, cmd) {
			t.Errorf("command %q missing from bridge", cmd)
		}
	}
}
