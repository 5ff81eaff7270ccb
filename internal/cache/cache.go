// Package cache is a process-wide TTL store for tenant configuration snapshots.
// Expiry is lazy: an entry past its TTL is evicted by the Get that observes
// it and reported as a miss. There is no background sweeper.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// DefaultTTL bounds staleness when no TTL is configured.
const DefaultTTL = 300 * time.Second

// shardCount stripes the key space so that writes to unrelated tenants
// never contend on the same lock.
const shardCount = 16

// entry wraps a snapshot with the instant it was stored.
type entry struct {
	cfg      *models.TenantConfig
	storedAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Cache holds tenant configuration snapshots keyed by tenant key. Snapshots
// are treated as immutable once stored: Get hands out the stored pointer,
// it never copies. Safe for arbitrary concurrent use.
type Cache struct {
	shards [shardCount]shard
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

// Stats is a point-in-time view of the cache, as exposed on the admin API.
type Stats struct {
	Count      int      `json:"count"`
	TTLSeconds float64  `json:"ttl_seconds"`
	Hits       int64    `json:"hits"`
	Misses     int64    `json:"misses"`
	Tenants    []string `json:"tenants"`
}

// New creates a cache with the given TTL. Non-positive values fall back to
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock is New with a replaceable time source, for tests that need to
// steer entry age directly.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, now: now}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]entry)
	}
	return c
}

// fnv32a of the tenant key picks the shard.
func shardIndex(key string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime32
	}
	return h % shardCount
}

// Get returns the cached snapshot for a tenant key and whether it was a hit.
// An entry is fresh iff its age is strictly below the TTL; an expired entry
// is evicted as part of the same call and counted as a miss.
func (c *Cache) Get(tenantKey string) (*models.TenantConfig, bool) {
	s := &c.shards[shardIndex(tenantKey)]

	s.mu.RLock()
	e, ok := s.entries[tenantKey]
	s.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	age := c.now().Sub(e.storedAt)
	if age < 0 {
		// A storedAt in the future means the clock or the bookkeeping is
		// corrupt; carrying on would serve entries forever.
		panic(fmt.Sprintf("cache: entry for %q has negative age %s", tenantKey, age))
	}
	if age >= c.ttl {
		s.mu.Lock()
		// A concurrent Set may have refreshed the entry between the read
		// and this lock; only evict the exact entry we saw expire.
		if cur, still := s.entries[tenantKey]; still && cur.storedAt.Equal(e.storedAt) {
			delete(s.entries, tenantKey)
		}
		s.mu.Unlock()
		c.misses.Add(1)
		log.Debug().Str("tenant", tenantKey).Dur("age", age).Msg("Evicted expired config")
		return nil, false
	}

	c.hits.Add(1)
	return e.cfg, true
}

// Set stores a snapshot for a tenant key, replacing any previous entry and
// restarting its TTL.
func (c *Cache) Set(tenantKey string, cfg *models.TenantConfig) {
	s := &c.shards[shardIndex(tenantKey)]
	s.mu.Lock()
	s.entries[tenantKey] = entry{cfg: cfg, storedAt: c.now()}
	s.mu.Unlock()
}

// Invalidate removes one tenant's entry. Reports whether one was present.
func (c *Cache) Invalidate(tenantKey string) bool {
	s := &c.shards[shardIndex(tenantKey)]
	s.mu.Lock()
	_, ok := s.entries[tenantKey]
	if ok {
		delete(s.entries, tenantKey)
	}
	s.mu.Unlock()
	return ok
}

// InvalidateAll drops every entry and returns how many were removed.
func (c *Cache) InvalidateAll() int {
	var removed int
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		removed += len(s.entries)
		s.entries = make(map[string]entry)
		s.mu.Unlock()
	}
	return removed
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Stats reports current size, configured TTL, hit/miss counters, and the
// cached tenant keys (sorted). Entries already past their TTL are excluded
// from the count and the key list, though they stay resident until a Get
// or an invalidation touches them.
func (c *Cache) Stats() Stats {
	now := c.now()
	tenants := make([]string, 0)
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for k, e := range s.entries {
			if now.Sub(e.storedAt) < c.ttl {
				tenants = append(tenants, k)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(tenants)
	return Stats{
		Count:      len(tenants),
		TTLSeconds: c.ttl.Seconds(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Tenants:    tenants,
	}
}
