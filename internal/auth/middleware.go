package auth

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/BradenHooton/quizgate/pkg/logger"
)

const (
	// AdminKeyHeader carries the management secret
	AdminKeyHeader = "X-Admin-Key"
	// AdminKeyQueryParam is accepted for links opened directly in a browser
	AdminKeyQueryParam = "adminKey"
)

type contextKey string

// AdminIPContextKey holds the resolved client IP of an authenticated admin request
const AdminIPContextKey contextKey = "admin_ip"

// AdminIPFromContext returns the admin's client IP, or "" outside an admin request
func AdminIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(AdminIPContextKey).(string)
	return ip
}

// AdminKeyMiddleware gates management routes behind the shared admin secret
type AdminKeyMiddleware struct {
	verifier    *AdminKeyVerifier
	timing      *TimingDelay
	auditLogger *logger.AuditLogger
	ipConfig    *pkghttp.IPConfig
}

// NewAdminKeyMiddleware creates the admin gate
func NewAdminKeyMiddleware(
	verifier *AdminKeyVerifier,
	timing *TimingDelay,
	auditLogger *logger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{
		verifier:    verifier,
		timing:      timing,
		auditLogger: auditLogger,
		ipConfig:    ipConfig,
	}
}

// presentedKey returns the header value, falling back to the query parameter
func presentedKey(r *http.Request) string {
	if key := r.Header.Get(AdminKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(AdminKeyQueryParam)
}

// RequireAdminKey rejects requests without a matching secret with 403
func (m *AdminKeyMiddleware) RequireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := pkghttp.ExtractClientIP(r, m.ipConfig)
		key := presentedKey(r)
		if m.verifier.Verify(key) {
			ctx := context.WithValue(r.Context(), AdminIPContextKey, clientIP)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		reason := "invalid admin key"
		if key == "" {
			reason = "missing admin key"
		}

		if m.auditLogger != nil {
			m.auditLogger.LogAdminAuthFailure(clientIP, r.URL.Path, reason)
		}
		if m.timing != nil {
			m.timing.WaitFrom(r.Context(), start)
		}

		pkghttp.WriteForbidden(w, "Admin access required")
	})
}
