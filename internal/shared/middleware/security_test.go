package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsHostAllowed(t *testing.T) {
	ledgerHosts := []string{"ledger.example.com", "api.ledger.example.com:8443"}

	tests := []struct {
		name    string
		host    string
		allowed []string
		want    bool
	}{
		{"no allow list", "anything.test", nil, true},
		{"exact match", "ledger.example.com", ledgerHosts, true},
		{"port on request only", "ledger.example.com:80", ledgerHosts, true},
		{"port on allow list only", "api.ledger.example.com", ledgerHosts, true},
		{"different port same host", "api.ledger.example.com:9000", ledgerHosts, true},
		{"mixed case and padding", "  Ledger.Example.COM:80 ", ledgerHosts, true},
		{"padded allow entry", "ledger.example.com", []string{"  ledger.example.com "}, true},
		{"ipv6 bracketed", "[::1]:8080", []string{"::1"}, true},
		{"ipv6 bare request", "::1", []string{"[::1]:8080"}, true},
		{"ipv6 zone", "[fe80::1%lo0]:8080", []string{"fe80::1%lo0"}, true},
		{"unknown host", "evil.example.net", ledgerHosts, false},
		{"subdomain is not parent", "eu.ledger.example.com", ledgerHosts, false},
		{"suffix trick", "ledger.example.com.evil.net", ledgerHosts, false},
		{"ipv6 other address", "[::2]:8080", []string{"[::1]:8080"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHostAllowed(tt.host, tt.allowed); got != tt.want {
				t.Errorf("IsHostAllowed(%q, %v) = %v, want %v", tt.host, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestStripPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ledger.example.com", "ledger.example.com"},
		{"ledger.example.com:8080", "ledger.example.com"},
		{"[::1]:8080", "::1"},
		{"[::1]", "::1"},
		{"::1", "::1"},
	}

	for _, tt := range tests {
		if got := stripPort(tt.in); got != tt.want {
			t.Errorf("stripPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHSTSAndNoStore(t *testing.T) {
	handler := HSTS(NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	if got := rr.Header().Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=") {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
