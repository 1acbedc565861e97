package utils

import (
	"net"
	"net/http"
)

// ExtractClientIP returns the host part of r.RemoteAddr.
//
// Forwarding headers are client controlled and are not read here. Behind a
// trusted proxy the router installs chi's RealIP middleware, which rewrites
// RemoteAddr from them before this runs.
func ExtractClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
