package auth_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/quizgate/internal/auth"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/BradenHooton/quizgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, logBuf *bytes.Buffer, timing *auth.TimingDelay) http.Handler {
	t.Helper()

	verifier, err := auth.NewAdminKeyVerifier(testAdminKey, "")
	require.NoError(t, err)

	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	audit := logger.NewAuditLogger(slog.New(slog.NewJSONHandler(logBuf, nil)))
	gate := auth.NewAdminKeyMiddleware(verifier, timing, audit, ipConfig)

	return gate.RequireAdminKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAdminKey_Header(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestGate(t, &logs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/security", nil)
	req.Header.Set(auth.AdminKeyHeader, testAdminKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, logs.String())
}

func TestRequireAdminKey_QueryParam(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestGate(t, &logs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/codes/ABC/qr?adminKey="+testAdminKey, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireAdminKey_PassesAdminIPDownstream(t *testing.T) {
	verifier, err := auth.NewAdminKeyVerifier(testAdminKey, "")
	require.NoError(t, err)
	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var seen string
	gate := auth.NewAdminKeyMiddleware(verifier, nil, nil, ipConfig)
	handler := gate.RequireAdminKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.AdminIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/codes", nil)
	req.RemoteAddr = "10.0.0.7:4431"
	req.Header.Set("X-Forwarded-For", "198.51.100.23")
	req.Header.Set(auth.AdminKeyHeader, testAdminKey)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.23", seen)
	assert.Empty(t, auth.AdminIPFromContext(req.Context()))
}

func TestRequireAdminKey_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantReason string
	}{
		{"missing", "", "missing admin key"},
		{"wrong", "wrong-key", "invalid admin key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			handler := newTestGate(t, &logs, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/codes", nil)
			req.RemoteAddr = "203.0.113.10:443"
			if tt.header != "" {
				req.Header.Set(auth.AdminKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusForbidden, w.Code)

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "forbidden", resp.Error)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
			assert.Equal(t, "admin_auth_failure", entry["event_type"])
			assert.Equal(t, tt.wantReason, entry["failure_reason"])
			assert.Equal(t, "203.0.113.10", entry["ip_address"])
			assert.Equal(t, "/api/admin/codes", entry["path"])
		})
	}
}

func TestRequireAdminKey_FailureLogsProxiedClient(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestGate(t, &logs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/security", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "198.51.100.7", entry["ip_address"])
}

func TestRequireAdminKey_FailureIsDelayed(t *testing.T) {
	var logs bytes.Buffer
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 60})
	handler := newTestGate(t, &logs, timing)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/security", nil)
	req.Header.Set(auth.AdminKeyHeader, "nope")
	w := httptest.NewRecorder()

	start := time.Now()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
