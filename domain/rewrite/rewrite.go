// Package rewrite transforms proxied HTML so the page can be embedded
// and scripted despite the origin site's framing defenses. Non-HTML
// bodies never enter this package.
//
// The transformer operates on a parse tree (golang.org/x/net/html)
// rather than string patching, which keeps it robust against malformed
// markup. All transformations are idempotent: rewriting an already
// rewritten document changes nothing.
package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// compatScriptID marks the injected compatibility script so a second
// pass can recognize it.
const compatScriptID = "browsegate-compat"

// IsHTML reports whether a Content-Type header value indicates an HTML
// body that should pass through the rewriter.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == "text/html" || ct == "application/xhtml+xml"
}

// Rewrite applies the five HTML transformations to a full document:
// strip meta framing/CSP tags, inject a base tag pointing at the
// target's own origin, strip iframe sandbox attributes, and inject the
// compatibility script. The returned byte slice is what is transmitted
// to the caller, so its length is the metered transfer size.
//
// sessionID may be empty (simple mode); the injected script then
// routes navigation through the unauthenticated query form.
func Rewrite(body []byte, target *url.URL, sessionID string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	st := &state{origin: target.Scheme + "://" + target.Host}
	st.walk(doc)

	head := st.head
	if head == nil {
		// html.Parse synthesizes head for full documents; a nil head
		// means a degenerate tree. Fall back to the document root so
		// the injections still land somewhere renderable.
		head = doc
	}

	if !st.hasBase {
		injectBase(head, st.origin)
	}
	if !st.hasCompat {
		injectCompatScript(head, st.origin, sessionID)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// state accumulates what the single tree walk discovers.
type state struct {
	origin    string
	head      *html.Node
	hasBase   bool
	hasCompat bool
}

func (s *state) walk(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Head:
				if s.head == nil {
					s.head = c
				}
			case atom.Base:
				s.hasBase = true
			case atom.Meta:
				if isBlockedMeta(c) {
					n.RemoveChild(c)
					continue
				}
			case atom.Iframe:
				stripAttr(c, "sandbox")
			case atom.Script:
				if getAttr(c, "id") == compatScriptID {
					s.hasCompat = true
				}
			}
		}
		s.walk(c)
	}
}

// isBlockedMeta matches <meta http-equiv="X-Frame-Options"> and
// <meta http-equiv="Content-Security-Policy"> in any casing.
func isBlockedMeta(n *html.Node) bool {
	equiv := strings.ToLower(getAttr(n, "http-equiv"))
	return equiv == "x-frame-options" || equiv == "content-security-policy"
}

// injectBase places <base href="<origin>/"> as the first child of head
// so relative URLs in the document resolve against the true origin.
func injectBase(head *html.Node, origin string) {
	base := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Base,
		Data:     "base",
		Attr:     []html.Attribute{{Key: "href", Val: origin + "/"}},
	}
	if head.FirstChild != nil {
		head.InsertBefore(base, head.FirstChild)
	} else {
		head.AppendChild(base)
	}
}

// injectCompatScript appends the runtime shim as the last child of
// head, i.e. immediately before </head>.
func injectCompatScript(head *html.Node, origin, sessionID string) {
	script := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "id", Val: compatScriptID}},
	}
	script.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: CompatScript(origin, sessionID),
	})
	head.AppendChild(script)
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func stripAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, key) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
