package rewrite

import "strings"

// CompatScript renders the runtime shim injected into every rewritten
// page. At the rendered page's runtime it:
//
//   - records the true origin of the proxied page;
//   - rewrites relative URLs passed to fetch and XMLHttpRequest so
//     they resolve against the true origin instead of the proxy host;
//   - listens for structured commands from the embedding frame
//     (navigate, reload, scrollTo) — arbitrary code strings are
//     ignored, the bridge is an allow-listed command set;
//   - exposes a location shim whose reads report the true URL and
//     whose writes re-route navigation back through the proxy with
//     the new URL re-encoded.
func CompatScript(origin, sessionID string) string {
	r := strings.NewReplacer(
		"__TRUE_ORIGIN__", origin,
		"__SESSION_ID__", sessionID,
	)
	return r.Replace(compatScriptTemplate)
}

const compatScriptTemplate = `(function(){
  if (window.__browsegate) { return; }
  var trueOrigin = "__TRUE_ORIGIN__";
  var sessionId = "__SESSION_ID__";

  function absolute(u) {
    try { return new URL(u, trueOrigin + "/").toString(); }
    catch (e) { return u; }
  }

  function proxied(u) {
    var abs = absolute(u);
    if (sessionId) {
      return "/proxy-service/" + sessionId + "/" + encodeURIComponent(abs);
    }
    return "/proxy-service?url=" + encodeURIComponent(abs);
  }

  // Relative fetches would otherwise resolve against the proxy host.
  var origFetch = window.fetch;
  if (origFetch) {
    window.fetch = function(input, init) {
      if (typeof input === "string" && input.charAt(0) !== "/" &&
          input.indexOf("://") === -1) {
        input = absolute(input);
      }
      return origFetch.call(window, input, init);
    };
  }

  var origOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function(method, url) {
    if (typeof url === "string" && url.charAt(0) !== "/" &&
        url.indexOf("://") === -1) {
      url = absolute(url);
    }
    var args = Array.prototype.slice.call(arguments, 2);
    return origOpen.apply(this, [method, url].concat(args));
  };

  // Cross-frame bridge: structured commands only.
  window.addEventListener("message", function(ev) {
    var msg = ev.data;
    if (!msg || typeof msg !== "object" || msg.source !== "browsegate") {
      return;
    }
    switch (msg.command) {
    case "navigate":
      if (typeof msg.url === "string") {
        window.location.href = proxied(msg.url);
      }
      break;
    case "reload":
      window.location.reload();
      break;
    case "scrollTo":
      window.scrollTo(msg.x || 0, msg.y || 0);
      break;
    }
  });

  window.__browsegate = {
    origin: trueOrigin,
    session: sessionId,
    location: {
      get href() {
        var path = window.location.pathname;
        var idx = path.lastIndexOf("/");
        if (idx >= 0) {
          try { return decodeURIComponent(path.slice(idx + 1)); }
          catch (e) {}
        }
        return trueOrigin + "/";
      },
      set href(u) { window.location.href = proxied(u); },
      assign: function(u) { window.location.assign(proxied(u)); },
      replace: function(u) { window.location.replace(proxied(u)); },
      reload: function() { window.location.reload(); }
    }
  };
})();`
