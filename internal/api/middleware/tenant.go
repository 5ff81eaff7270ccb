package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// TenantKeyKey is the context key for the tenant key a request is scoped to.
const TenantKeyKey contextKey = "tenant_key"

// TenantExtractor records which tenant an admin request concerns, when the
// caller says so via the X-Tenant-Key header or the tenant query parameter.
// Most requests are cross-tenant and carry no key; handlers working on
// /tenants/{tenantKey} routes take the key from the URL instead.
func TenantExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Key"))
		if tenant == "" {
			tenant = strings.TrimSpace(r.URL.Query().Get("tenant"))
		}
		if tenant == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), TenantKeyKey, strings.ToLower(tenant))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantKey retrieves the tenant key from the request context, or "".
func GetTenantKey(ctx context.Context) string {
	if v, ok := ctx.Value(TenantKeyKey).(string); ok {
		return v
	}
	return ""
}
