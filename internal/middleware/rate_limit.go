package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultPublicRateLimit returns the coarse ceiling for public endpoints.
// Verification has its own per-client ledger; this only bounds raw volume.
func DefaultPublicRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP,
// resolved the same way as the admission ledger's client identity
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
