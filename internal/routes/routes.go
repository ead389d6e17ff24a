package routes

import (
	"net/http"

	"github.com/BradenHooton/keygate/internal/auth"
	"github.com/BradenHooton/keygate/internal/handlers"
	"github.com/BradenHooton/keygate/internal/middleware"
	pkghttp "github.com/BradenHooton/keygate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	sessions auth.TokenValidator,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteMethodNotAllowed(w, "Method not allowed")
	})

	router.Get("/health", healthHandler.Health)

	// Public routes - no session required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/otp/login", authHandler.OTPLogin)

	// Protected routes - session token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sessions))
		r.Get("/auth/session", authHandler.Session)
	})
}
