package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "production"})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/access-codes/verify", nil)
	w := httptest.NewRecorder()

	handler(testHandler).ServeHTTP(w, req)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
	}

	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.expected {
			t.Errorf("Header %s: got %q, want %q", tt.header, got, tt.expected)
		}
	}

	if csp := w.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("CSP should deny all sources: %q", csp)
	}

	// Plain HTTP request: no HSTS
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be sent over plain HTTP, got %q", hsts)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name     string
		env      string
		https    bool
		wantHSTS bool
	}{
		{"production https", "production", true, true},
		{"production http", "production", false, false},
		{"development https", "development", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			if tt.https {
				req.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()

			SecurityHeaders(SecurityHeadersConfig{Env: tt.env})(testHandler).ServeHTTP(w, req)

			got := w.Header().Get("Strict-Transport-Security") != ""
			if got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}
