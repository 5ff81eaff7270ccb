// Package prewarm keeps high-traffic tenants' configurations resident in
// the cache. It warms a configured tenant list once at boot and, when an
// interval is set, on a ticker thereafter, so heavy tenants cross TTL
// boundaries without a cold fetch on a live call.
package prewarm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// DefaultParallelism bounds concurrent warm fetches per cycle.
const DefaultParallelism = 4

// TenantResolver is the slice of the resolver the prewarmer needs.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, tenantKey string) (*models.TenantConfig, error)
}

// Result describes one warm cycle. Failed maps tenant key to the failure
// message; a failed tenant never aborts the cycle.
type Result struct {
	Warmed []string          `json:"warmed"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Prewarmer warms a fixed tenant list through the resolver.
type Prewarmer struct {
	resolver TenantResolver
	tenants  []string
	interval time.Duration // 0 disables the ticker; boot warm still runs
}

// New creates a prewarmer for the given tenant list.
func New(resolver TenantResolver, tenants []string, interval time.Duration) *Prewarmer {
	return &Prewarmer{resolver: resolver, tenants: tenants, interval: interval}
}

// Tenants returns the configured warm list.
func (p *Prewarmer) Tenants() []string { return p.tenants }

// Run warms the configured tenant list once.
func (p *Prewarmer) Run(ctx context.Context) Result {
	return p.Warm(ctx, p.tenants)
}

// Warm resolves every listed tenant concurrently (bounded parallelism).
// Per-tenant failures are logged and reported in the Result, never fatal.
func (p *Prewarmer) Warm(ctx context.Context, tenants []string) Result {
	result := Result{Warmed: []string{}}
	if len(tenants) == 0 {
		return result
	}

	start := time.Now()
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultParallelism)
	for _, tenant := range tenants {
		g.Go(func() error {
			_, err := p.resolver.ResolveTenant(ctx, tenant)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if result.Failed == nil {
					result.Failed = map[string]string{}
				}
				result.Failed[tenant] = err.Error()
				log.Warn().Err(err).Str("tenant", tenant).Msg("Prewarm failed for tenant")
				return nil // warm the rest regardless
			}
			result.Warmed = append(result.Warmed, tenant)
			return nil
		})
	}
	g.Wait()

	log.Info().
		Int("warmed", len(result.Warmed)).
		Int("failed", len(result.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("Prewarm cycle complete")
	return result
}

// Start runs one warm cycle immediately, then on the configured interval
// until ctx is canceled. With no interval it returns after the boot warm.
func (p *Prewarmer) Start(ctx context.Context) {
	if len(p.tenants) == 0 {
		return
	}

	log.Info().
		Strs("tenants", p.tenants).
		Dur("interval", p.interval).
		Msg("Prewarmer started")
	p.Run(ctx)

	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Prewarmer stopped")
			return
		case <-ticker.C:
			p.Run(ctx)
		}
	}
}
