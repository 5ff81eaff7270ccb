// Package handlers implements the HTTP handlers for the SmileDesk agent
// plane admin API: cache inspection and invalidation, tenant identification,
// config and voice resolution, and live session listing.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/smiledesk/smiledesk/agent-plane/internal/backend"
	"github.com/smiledesk/smiledesk/agent-plane/internal/cache"
	"github.com/smiledesk/smiledesk/agent-plane/internal/prewarm"
	"github.com/smiledesk/smiledesk/agent-plane/internal/resolver"
	"github.com/smiledesk/smiledesk/agent-plane/internal/session"
	"github.com/smiledesk/smiledesk/agent-plane/internal/tenancy"
	"github.com/smiledesk/smiledesk/agent-plane/internal/voice"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Cache      *cache.Cache
	Resolver   *resolver.Resolver
	Identifier *tenancy.Identifier
	Prewarmer  *prewarm.Prewarmer
	Sessions   *session.Registry
}

// New creates a new Handlers instance with all dependencies.
func New(c *cache.Cache, res *resolver.Resolver, id *tenancy.Identifier, pw *prewarm.Prewarmer, sess *session.Registry) *Handlers {
	return &Handlers{
		Cache:      c,
		Resolver:   res,
		Identifier: id,
		Prewarmer:  pw,
		Sessions:   sess,
	}
}

// ── Cache Handlers ───────────────────────────────────────────

func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Cache.Stats())
}

func (h *Handlers) InvalidateAll(w http.ResponseWriter, r *http.Request) {
	removed := h.Cache.InvalidateAll()
	log.Info().Int("removed", removed).Msg("Config cache cleared")
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handlers) InvalidateTenant(w http.ResponseWriter, r *http.Request) {
	tenantKey := chi.URLParam(r, "tenantKey")
	found := h.Cache.Invalidate(tenantKey)

	log.Info().Str("tenant", tenantKey).Bool("found", found).Msg("Config cache entry invalidated")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenant": tenantKey,
		"found":  found,
	})
}

func (h *Handlers) Prewarm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tenants []string `json:"tenants"`
	}
	// Body is optional; without one we warm the configured tenant list.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tenants := req.Tenants
	if len(tenants) == 0 {
		tenants = h.Prewarmer.Tenants()
	}
	if len(tenants) == 0 {
		respondError(w, http.StatusBadRequest, "No tenants to warm: provide a 'tenants' list or configure SMILEDESK_PREWARM_TENANTS")
		return
	}

	result := h.Prewarmer.Warm(r.Context(), tenants)
	respondJSON(w, http.StatusOK, result)
}

// ── Tenant Handlers ──────────────────────────────────────────

func (h *Handlers) Identify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string `json:"room_name"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tenantKey, source, err := h.Identifier.Identify(r.Context(), req.RoomName, req.Phone)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotIdentifiable) {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"tenant_key": tenantKey,
		"source":     string(source),
	})
}

func (h *Handlers) GetTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantKey := chi.URLParam(r, "tenantKey")

	if r.URL.Query().Get("refresh") == "true" {
		h.Cache.Invalidate(tenantKey)
	}

	cfg, err := h.Resolver.ResolveTenant(r.Context(), tenantKey)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) GetTenantVoice(w http.ResponseWriter, r *http.Request) {
	tenantKey := chi.URLParam(r, "tenantKey")

	cfg, err := h.Resolver.ResolveTenant(r.Context(), tenantKey)
	if err != nil {
		respondResolveError(w, err)
		return
	}

	params, verr := voice.Resolve(cfg.Voice)
	resp := map[string]interface{}{
		"tenant":     tenantKey,
		"parameters": params,
	}
	if verr != nil {
		warnings := make([]string, 0)
		for _, fe := range voice.FieldErrors(verr) {
			warnings = append(warnings, fe.Error())
		}
		resp["warnings"] = warnings
	}
	respondJSON(w, http.StatusOK, resp)
}

// ── Session Handlers ─────────────────────────────────────────

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    h.Sessions.Count(),
		"sessions": h.Sessions.Snapshots(),
	})
}

// ── Helpers ──────────────────────────────────────────────────

// respondResolveError maps resolver failures onto status codes: an unknown
// tenant is 404, a backend that answered with an invalid payload is 422,
// anything else on the backend path is 502.
func respondResolveError(w http.ResponseWriter, err error) {
	var fetchErr *backend.ConfigFetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.NotFound() {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	var valErr *resolver.ConfigValidationError
	if errors.As(err, &valErr) {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
