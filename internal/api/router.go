package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

// RouterConfig carries the edge settings of the router.
type RouterConfig struct {
	CORSOrigins     []string
	AdminToken      string
	Redis           *redis.Client // nil disables rate limiting
	RateLimit       int
	RateLimitWindow time.Duration
}

func NewRouter(apiHandler *APIHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/", apiHandler.HealthHandler)
		r.Get("/health", apiHandler.HealthHandler)
		r.Get("/sources", apiHandler.SourcesHandler)
		r.Get("/resume", apiHandler.ResumeHandler)
		r.Get("/chat/history/{sessionID}", apiHandler.ChatHistoryHandler)

		r.With(RateLimit(cfg.Redis, cfg.RateLimit, cfg.RateLimitWindow)).Post("/chat", apiHandler.ChatHandler)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(AdminAuth(cfg.AdminToken))

			r.Post("/reindex", apiHandler.ReindexHandler)
			if cfg.AdminToken != "" {
				r.Get("/admin/sessions", apiHandler.ListSessionsHandler)
				r.Get("/admin/sessions/{sessionID}", apiHandler.GetSessionHandler)
			}
		})
	})

	return r
}
