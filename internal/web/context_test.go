package web

import (
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/statimport/internal/core"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
		{"2001:db8::2", "2001:db8::2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := clientIP(tt.addr); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestWithRequestMetadata(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/imports", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("User-Agent", "uploader/1.0")

	meta := core.RequestMetaFromContext(withRequestMetadata(r.Context(), r))

	if meta.ClientIP != "192.0.2.1" {
		t.Errorf("ClientIP = %q, want 192.0.2.1", meta.ClientIP)
	}
	if meta.UserAgent != "uploader/1.0" {
		t.Errorf("UserAgent = %q, want uploader/1.0", meta.UserAgent)
	}
}
