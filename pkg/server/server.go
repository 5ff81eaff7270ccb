// Package server provides the public entry point for initializing the
// SmileDesk agent plane server.
//
// This package exists in pkg/ (not internal/) so that deployment wrappers
// can import it and compose the full server with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smiledesk/smiledesk/agent-plane/internal/api"
	"github.com/smiledesk/smiledesk/agent-plane/internal/api/handlers"
	"github.com/smiledesk/smiledesk/agent-plane/internal/backend"
	"github.com/smiledesk/smiledesk/agent-plane/internal/cache"
	"github.com/smiledesk/smiledesk/agent-plane/internal/config"
	"github.com/smiledesk/smiledesk/agent-plane/internal/notify"
	"github.com/smiledesk/smiledesk/agent-plane/internal/prewarm"
	"github.com/smiledesk/smiledesk/agent-plane/internal/resolver"
	"github.com/smiledesk/smiledesk/agent-plane/internal/session"
	"github.com/smiledesk/smiledesk/agent-plane/internal/telemetry"
	"github.com/smiledesk/smiledesk/agent-plane/internal/tenancy"
)

// Server holds the initialized agent plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Cache is the tenant config cache. Exposed so wrappers can inspect
	// or invalidate it directly.
	Cache *cache.Cache

	// Resolver resolves tenant keys to validated configs.
	Resolver *resolver.Resolver

	// Sessions tracks live call sessions.
	Sessions *session.Registry

	// Lifecycle registers call sessions and handles end-of-call reporting.
	Lifecycle *session.Lifecycle

	// Prewarmer warms the configured tenant list. Run Start in a goroutine
	// to enable boot warming and the periodic refresh loop.
	Prewarmer *prewarm.Prewarmer

	// Config is the loaded server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry
	// and stop background cache janitors.
	ShutdownFunc func(context.Context) error
}

// New initializes all agent plane components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the agent plane with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Initialize telemetry
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	configCache := cache.New(cfg.Cache.TTL)
	log.Info().Dur("ttl", cfg.Cache.TTL).Msg("✅ Config cache initialized")

	be := backend.NewHTTPClient(backend.Config{
		BaseURL:    cfg.Backend.URL,
		Token:      cfg.Backend.Token,
		Timeout:    cfg.Backend.Timeout,
		RetryMax:   cfg.Backend.RetryMax,
		RetryDelay: cfg.Backend.RetryDelay,
	})
	log.Info().Str("url", cfg.Backend.URL).Msg("✅ Backend client initialized")

	directory := tenancy.NewCachingDirectory(be, cfg.Cache.PhoneTTL)
	identifier := tenancy.NewIdentifier(directory, cfg.Cache.DefaultTenant)

	// The fetch budget outlives a single attempt so retries can finish even
	// after the original caller hangs up.
	fetchBudget := cfg.Backend.Timeout * time.Duration(cfg.Backend.RetryMax+1)
	res := resolver.New(identifier, configCache, be, fetchBudget)

	pw := prewarm.New(res, cfg.Prewarm.Tenants, cfg.Prewarm.Interval)
	sessions := session.NewRegistry()
	lifecycle := session.NewLifecycle(sessions, be, notify.NewNotifier())

	h := handlers.New(configCache, res, identifier, pw, sessions)
	router := api.NewRouter(cfg, h)

	shutdown := func(ctx context.Context) error {
		directory.Stop()
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      router,
		Cache:        configCache,
		Resolver:     res,
		Sessions:     sessions,
		Lifecycle:    lifecycle,
		Prewarmer:    pw,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
