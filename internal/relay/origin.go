package relay

import (
	"net"
	"net/http"
	"strings"
)

// Origin extracts the operator's address. The first non-empty X-Forwarded-For
// hop wins, then X-Real-IP, then the peer address.
func Origin(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if hop = strings.TrimSpace(hop); hop != "" {
			return hop
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
