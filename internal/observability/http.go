// Package observability carries metrics, the event-bus publisher, and
// request metadata helpers shared by the HTTP and websocket layers.
package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest reads the client device id the mobile app attaches
// to every call. Empty when the caller is not the app.
func DeviceIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Device-Id"))
}

// RequestIDFromRequest reads the correlation id the gateway assigns.
func RequestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}

// IPFromRequest resolves the originating client address, preferring the
// first hop recorded by the gateway over the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
