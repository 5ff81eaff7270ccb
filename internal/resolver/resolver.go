// Package resolver turns call metadata into a validated tenant configuration.
//
// Resolution order: identify the tenant, consult the cache, and only on a
// miss fetch from the backend. Concurrent misses for the same cold tenant
// key are coalesced into a single backend fetch; every waiter receives that
// one result. Fetches run detached from the triggering call so a hang-up
// mid-fetch still populates the cache for later calls.
package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/smiledesk/smiledesk/agent-plane/internal/backend"
	"github.com/smiledesk/smiledesk/agent-plane/internal/cache"
	"github.com/smiledesk/smiledesk/agent-plane/internal/tenancy"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

var tracer = otel.Tracer("smiledesk-agent-plane")

// DefaultFetchBudget bounds a detached fetch, attempts and backoff included,
// when no budget is configured.
const DefaultFetchBudget = 45 * time.Second

// Resolver orchestrates identification, cache lookup, and the single-flight
// backend fetch. Safe for use from many concurrent call tasks.
type Resolver struct {
	identifier  *tenancy.Identifier
	cache       *cache.Cache
	backend     backend.Client
	fetchBudget time.Duration
	group       singleflight.Group
}

// New builds a Resolver. fetchBudget caps the detached backend fetch end to
// end; non-positive values fall back to DefaultFetchBudget.
func New(identifier *tenancy.Identifier, c *cache.Cache, client backend.Client, fetchBudget time.Duration) *Resolver {
	if fetchBudget <= 0 {
		fetchBudget = DefaultFetchBudget
	}
	return &Resolver{
		identifier:  identifier,
		cache:       c,
		backend:     client,
		fetchBudget: fetchBudget,
	}
}

// Resolve identifies the tenant behind the call metadata and returns its
// configuration. A tenant that cannot be identified surfaces
// tenancy.ErrTenantNotIdentifiable; the caller degrades to a generic
// experience, the call itself goes on.
func (r *Resolver) Resolve(ctx context.Context, meta models.CallMetadata) (*models.TenantConfig, error) {
	key, source, err := r.identifier.Identify(ctx, meta.RoomName, meta.Phone)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("room", meta.RoomName).
		Str("tenant", key).
		Str("source", string(source)).
		Msg("Tenant identified")
	return r.ResolveTenant(ctx, key)
}

// ResolveTenant returns the configuration for a known tenant key: from the
// cache when fresh, otherwise via a coalesced backend fetch. The caller's
// context only bounds its own wait: an expired caller abandons the fetch,
// the fetch does not abandon the cache.
func (r *Resolver) ResolveTenant(ctx context.Context, tenantKey string) (*models.TenantConfig, error) {
	if cfg, ok := r.cache.Get(tenantKey); ok {
		return cfg, nil
	}

	ctx, span := tracer.Start(ctx, "resolver.fetch")
	span.SetAttributes(attribute.String("smiledesk.tenant", tenantKey))
	defer span.End()

	ch := r.group.DoChan(tenantKey, func() (any, error) {
		return r.fetchAndCache(tenantKey)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, res.Err
		}
		if res.Shared {
			span.SetAttributes(attribute.Bool("smiledesk.coalesced", true))
		}
		return res.Val.(*models.TenantConfig), nil
	case <-ctx.Done():
		// The in-flight fetch keeps running for the benefit of later calls.
		return nil, ctx.Err()
	}
}

// fetchAndCache is the single-flight body: fetch, validate, populate.
// It deliberately ignores the triggering call's context.
func (r *Resolver) fetchAndCache(tenantKey string) (*models.TenantConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchBudget)
	defer cancel()

	start := time.Now()
	cfg, err := r.backend.FetchConfig(ctx, tenantKey)
	if err != nil {
		// Nothing is cached for a failed fetch; the next call retries.
		log.Warn().Err(err).Str("tenant", tenantKey).Msg("Config fetch failed")
		return nil, err
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		err := &ConfigValidationError{TenantKey: tenantKey, Problems: problems}
		log.Warn().
			Str("tenant", tenantKey).
			Strs("problems", problems).
			Msg("Config rejected by validation")
		return nil, err
	}

	r.cache.Set(tenantKey, cfg)
	log.Info().
		Str("tenant", tenantKey).
		Dur("elapsed", time.Since(start)).
		Msg("Config fetched and cached")
	return cfg, nil
}
