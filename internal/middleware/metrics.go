package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/quizgate/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Metrics records request counts and latency per route pattern. The pattern
// is used instead of the path so codes and client IDs never become labels.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.ObserveHTTP(route, r.Method, strconv.Itoa(status), time.Since(start).Seconds())
		})
	}
}
