package resolver_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiledesk/smiledesk/agent-plane/internal/backend"
	"github.com/smiledesk/smiledesk/agent-plane/internal/cache"
	"github.com/smiledesk/smiledesk/agent-plane/internal/resolver"
	"github.com/smiledesk/smiledesk/agent-plane/internal/tenancy"
	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// fakeBackend counts fetches and serves canned responses per tenant.
type fakeBackend struct {
	mu      sync.Mutex
	fetches atomic.Int64
	configs map[string]*models.TenantConfig
	errs    map[string]error
	// block, when set, holds every fetch until released.
	block chan struct{}
}

func (f *fakeBackend) FetchConfig(ctx context.Context, tenantKey string) (*models.TenantConfig, error) {
	f.fetches.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[tenantKey]; ok {
		return nil, err
	}
	if cfg, ok := f.configs[tenantKey]; ok {
		cp := *cfg
		return &cp, nil
	}
	return nil, &backend.ConfigFetchError{TenantKey: tenantKey, Status: 404, Attempts: 1}
}

func (f *fakeBackend) IdentifyTenant(ctx context.Context, phone string) (string, error) {
	return "", nil
}

func (f *fakeBackend) ReportOutcome(ctx context.Context, report models.CallReport) error {
	return nil
}

func (f *fakeBackend) setErr(tenantKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	if err == nil {
		delete(f.errs, tenantKey)
	} else {
		f.errs[tenantKey] = err
	}
}

func validConfig(id string) *models.TenantConfig {
	return &models.TenantConfig{
		TenantID:      id,
		Customer:      models.CustomerInfo{Name: id + " Dental", Phone: "+441632960100"},
		SystemPrompt:  "You are the receptionist for " + id + ".",
		Consultations: map[string]string{"general_consultation": "svc-100"},
		Doctors:       map[string]models.Doctor{"doc-1": {Name: "Dr Patel"}},
		Storage:       models.StorageConfig{Container: "dental", Folder: id},
	}
}

func newResolver(be backend.Client, c *cache.Cache) *resolver.Resolver {
	id := tenancy.NewIdentifier(nil, "westbury")
	return resolver.New(id, c, be, 5*time.Second)
}

func TestResolveTenantCacheHit(t *testing.T) {
	be := &fakeBackend{}
	c := cache.New(300 * time.Second)
	cfg := validConfig("westbury")
	c.Set("westbury", cfg)

	got, err := newResolver(be, c).ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Same(t, cfg, got)
	assert.Zero(t, be.fetches.Load(), "a cache hit must not touch the backend")
}

func TestResolveTenantMissFetchesAndCaches(t *testing.T) {
	be := &fakeBackend{configs: map[string]*models.TenantConfig{"westbury": validConfig("westbury")}}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	got, err := r.ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Equal(t, "westbury", got.TenantID)
	assert.Equal(t, int64(1), be.fetches.Load())

	// Second resolve comes from the cache.
	_, err = r.ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Equal(t, int64(1), be.fetches.Load())
}

func TestConcurrentMissesSingleFetch(t *testing.T) {
	const m = 32
	be := &fakeBackend{
		configs: map[string]*models.TenantConfig{"westbury": validConfig("westbury")},
		block:   make(chan struct{}),
	}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	var wg sync.WaitGroup
	results := make([]*models.TenantConfig, m)
	errs := make([]error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.ResolveTenant(context.Background(), "westbury")
		}(i)
	}

	// Let every caller reach the single-flight gate, then release the fetch.
	time.Sleep(50 * time.Millisecond)
	close(be.block)
	wg.Wait()

	for i := 0; i < m; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "westbury", results[i].TenantID)
	}
	assert.Equal(t, int64(1), be.fetches.Load(), "%d concurrent misses must coalesce into one fetch", m)
}

func TestFetchFailureNotCached(t *testing.T) {
	be := &fakeBackend{}
	be.setErr("westbury", &backend.ConfigFetchError{TenantKey: "westbury", Status: 502, Attempts: 3})
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	_, err := r.ResolveTenant(context.Background(), "westbury")
	var fe *backend.ConfigFetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, c.Stats().Count, "failures must not be cached")

	// Backend recovers; the next resolve fetches again and succeeds.
	be.setErr("westbury", nil)
	be.mu.Lock()
	be.configs = map[string]*models.TenantConfig{"westbury": validConfig("westbury")}
	be.mu.Unlock()

	got, err := r.ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Equal(t, "westbury", got.TenantID)
	assert.Equal(t, int64(2), be.fetches.Load())
}

func TestInvalidPayloadNotCached(t *testing.T) {
	incomplete := &models.TenantConfig{TenantID: "westbury"} // required fields missing
	be := &fakeBackend{configs: map[string]*models.TenantConfig{"westbury": incomplete}}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	_, err := r.ResolveTenant(context.Background(), "westbury")
	var ve *resolver.ConfigValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "westbury", ve.TenantKey)
	assert.NotEmpty(t, ve.Problems)
	assert.Equal(t, 0, c.Stats().Count)

	// Backend starts serving a complete snapshot; it gets cached.
	be.mu.Lock()
	be.configs["westbury"] = validConfig("westbury")
	be.mu.Unlock()

	_, err = r.ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats().Count)
}

func TestCallerCancellationDoesNotAbortFetch(t *testing.T) {
	be := &fakeBackend{
		configs: map[string]*models.TenantConfig{"westbury": validConfig("westbury")},
		block:   make(chan struct{}),
	}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.ResolveTenant(ctx, "westbury")
		done <- err
	}()

	// Caller hangs up while the fetch is still in flight.
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The detached fetch completes and populates the cache anyway.
	close(be.block)
	require.Eventually(t, func() bool {
		return c.Stats().Count == 1
	}, 2*time.Second, 10*time.Millisecond, "abandoned fetch must still populate the cache")

	got, err := r.ResolveTenant(context.Background(), "westbury")
	require.NoError(t, err)
	assert.Equal(t, "westbury", got.TenantID)
	assert.Equal(t, int64(1), be.fetches.Load())
}

func TestResolveIdentifiesFromRoom(t *testing.T) {
	be := &fakeBackend{configs: map[string]*models.TenantConfig{"acme": validConfig("acme")}}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	got, err := r.Resolve(context.Background(), models.CallMetadata{
		RoomName: "acme-smiledesk-agent-16789",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
}

func TestResolveFallsBackToDefaultTenant(t *testing.T) {
	be := &fakeBackend{configs: map[string]*models.TenantConfig{"westbury": validConfig("westbury")}}
	c := cache.New(300 * time.Second)
	r := newResolver(be, c)

	got, err := r.Resolve(context.Background(), models.CallMetadata{RoomName: "randomroom123"})
	require.NoError(t, err)
	assert.Equal(t, "westbury", got.TenantID)
}

func TestResolveNotIdentifiable(t *testing.T) {
	be := &fakeBackend{}
	c := cache.New(300 * time.Second)
	r := resolver.New(tenancy.NewIdentifier(nil, ""), c, be, time.Second)

	_, err := r.Resolve(context.Background(), models.CallMetadata{RoomName: "randomroom123"})
	require.ErrorIs(t, err, tenancy.ErrTenantNotIdentifiable)
	assert.Zero(t, be.fetches.Load())
}
