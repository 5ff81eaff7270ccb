package tenancy

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultPhoneCacheTTL bounds how long a phone → tenant mapping is reused.
const DefaultPhoneCacheTTL = 10 * time.Minute

// CachingDirectory decorates a PhoneDirectory with a TTL cache so repeat
// callers do not hit the backend on every call. Misses and lookup failures
// are never cached.
type CachingDirectory struct {
	inner PhoneDirectory
	cache *ttlcache.Cache[string, string]
}

// NewCachingDirectory wraps inner with a phone → tenant cache. Non-positive
// TTLs fall back to DefaultPhoneCacheTTL.
func NewCachingDirectory(inner PhoneDirectory, ttl time.Duration) *CachingDirectory {
	if ttl <= 0 {
		ttl = DefaultPhoneCacheTTL
	}
	c := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &CachingDirectory{inner: inner, cache: c}
}

// IdentifyTenant serves from the cache when it can, otherwise asks the inner
// directory and caches a successful non-empty answer.
func (d *CachingDirectory) IdentifyTenant(ctx context.Context, phone string) (string, error) {
	if item := d.cache.Get(phone); item != nil {
		return item.Value(), nil
	}

	key, err := d.inner.IdentifyTenant(ctx, phone)
	if err != nil {
		return "", err
	}
	if key != "" {
		d.cache.Set(phone, key, ttlcache.DefaultTTL)
	}
	return key, nil
}

// Stop halts the cache's expiry loop. Call on shutdown.
func (d *CachingDirectory) Stop() {
	d.cache.Stop()
}

var _ PhoneDirectory = (*CachingDirectory)(nil)
