package relay

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrigin(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"peer", nil, "10.0.0.7:51234", "10.0.0.7"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "192.168.1.20, 10.0.0.1"}, "10.0.0.1:80", "192.168.1.20"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 192.168.1.21 "}, "10.0.0.1:80", "192.168.1.21"},
		{"real ip", map[string]string{"X-Real-IP": "192.168.1.22"}, "10.0.0.1:80", "192.168.1.22"},
		{"forwarded beats real ip", map[string]string{"X-Forwarded-For": "192.168.1.23", "X-Real-IP": "192.168.1.24"}, "10.0.0.1:80", "192.168.1.23"},
		{"forwarded leading comma", map[string]string{"X-Forwarded-For": ", 10.0.0.5"}, "10.0.0.1:80", "10.0.0.5"},
		{"forwarded empty hops fall to real ip", map[string]string{"X-Forwarded-For": " , ", "X-Real-IP": " 192.168.1.25 "}, "10.0.0.1:80", "192.168.1.25"},
		{"forwarded empty hops fall to peer", map[string]string{"X-Forwarded-For": ",", "X-Real-IP": "  "}, "10.0.0.9:80", "10.0.0.9"},
		{"ipv6 peer", nil, "[fe80::1]:8000", "fe80::1"},
		{"unparseable peer", nil, "pipe", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/my-status", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, Origin(r))
		})
	}
}
