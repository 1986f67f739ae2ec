package routes

import (
	"net/http"

	"github.com/BradenHooton/quizgate/internal/auth"
	"github.com/BradenHooton/quizgate/internal/handlers"
	"github.com/BradenHooton/quizgate/internal/middleware"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	AccessCode *handlers.AccessCodeHandler
	Ranking    *handlers.RankingHandler
	Admin      *handlers.AdminHandler
	Health     *handlers.HealthHandler
	// Metrics serves the Prometheus exposition; nil leaves /metrics unmounted
	Metrics http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	adminGate *auth.AdminKeyMiddleware,
	publicLimit middleware.RateLimitConfig,
	ipConfig *pkghttp.IPConfig,
) {
	router.Get("/health", h.Health.Health)
	if h.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// Public routes. Verification is additionally throttled per client by the
	// admission ledger; this limiter only caps raw request volume.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(publicLimit, ipConfig))
		r.Post("/api/access-codes/verify", h.AccessCode.Verify)
		r.Post("/api/rankings", h.Ranking.Rank)
	})

	// Management routes, admin secret required
	router.Route("/api/admin", func(r chi.Router) {
		r.Use(adminGate.RequireAdminKey)

		r.Post("/codes", h.Admin.CreateCode)
		r.Get("/codes", h.Admin.ListCodes)
		r.Post("/codes/{code}/reset", h.Admin.ResetCode)
		r.Get("/codes/{code}/qr", h.Admin.CodeQR)

		r.Get("/security", h.Admin.SecurityStatus)
		r.Delete("/security/blocks/{clientID}", h.Admin.UnblockClient)
	})
}
