package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the address a request is attributed to. The stream
// limiter keys its per-client slots on this value, so forwarding headers
// count only when trustProxy says a reverse proxy we control sets them;
// otherwise a client could mint a fresh identity per connection.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedClient(r.Header); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedClient reads the proxy headers: the leftmost X-Forwarded-For
// entry names the originating client, with X-Real-IP as the fallback.
// Returns "" when neither header carries a usable value.
func forwardedClient(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(h.Get("X-Real-IP"))
}
