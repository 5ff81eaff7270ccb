package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/smiledesk/smiledesk/agent-plane/internal/api/handlers"
	"github.com/smiledesk/smiledesk/agent-plane/internal/api/middleware"
	"github.com/smiledesk/smiledesk/agent-plane/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.TenantExtractor)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-Key", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth().Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Config cache
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Delete("/", h.InvalidateAll)
			r.Delete("/{tenantKey}", h.InvalidateTenant)
			r.Post("/prewarm", h.Prewarm)
		})

		// Tenant identification & configuration
		r.Post("/identify", h.Identify)
		r.Route("/tenants/{tenantKey}", func(r chi.Router) {
			r.Get("/config", h.GetTenantConfig)
			r.Get("/voice", h.GetTenantVoice)
		})

		// Live call sessions
		r.Get("/sessions", h.ListSessions)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "smiledesk-agent-plane",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "smiledesk-agent-plane",
		})
	}
}
