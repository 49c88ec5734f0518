package routes

import (
	"net/http"

	"github.com/BradenHooton/iplanding/internal/handlers"
	"github.com/BradenHooton/iplanding/internal/middleware"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Options carries the cross-cutting pieces the routes need.
type Options struct {
	RateLimit  middleware.RateLimitConfig
	Classifier pkghttp.LocalClassifier
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	visitorHandler *handlers.VisitorHandler,
	adminHandler *handlers.AdminHandler,
	opts Options,
) {
	router.Get("/health", adminHandler.Health)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Public routes, throttled per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByClientIP(opts.RateLimit, opts.Classifier))

		r.Get("/", visitorHandler.Index)
		r.Post("/submit", visitorHandler.Submit)
		r.Get("/api/visitor-stats", adminHandler.Stats)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Get("/visitors", adminHandler.ListVisitors)
		r.Get("/visitors/{id}", adminHandler.GetVisitor)
		r.Get("/stats/daily", adminHandler.DailyStats)
		r.Post("/refresh-locations", adminHandler.RefreshLocations)
	})
}
