// Package backend talks to the SmileDesk platform backend: fetching tenant
// configuration snapshots, identifying tenants by caller phone number, and
// posting end-of-call reports.
//
// The client owns all retry behavior. Transport errors and 5xx responses are
// retried with exponential backoff; 4xx responses are permanent. Every
// failure surfaces as a *ConfigFetchError so callers never retry on top.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// Defaults applied by NewHTTPClient when the corresponding option is unset.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryMax   = 3
	DefaultRetryDelay = 1 * time.Second
)

// ConfigFetchError is the single failure type the backend client produces.
// Status is the last HTTP status observed (0 for transport errors) and
// Attempts how many requests were made before giving up.
type ConfigFetchError struct {
	TenantKey string
	Status    int
	Attempts  int
	Err       error
}

func (e *ConfigFetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend fetch for %q failed after %d attempt(s): HTTP %d", e.TenantKey, e.Attempts, e.Status)
	}
	return fmt.Sprintf("backend fetch for %q failed after %d attempt(s): %v", e.TenantKey, e.Attempts, e.Err)
}

func (e *ConfigFetchError) Unwrap() error { return e.Err }

// NotFound reports whether the backend answered 404 for this tenant.
func (e *ConfigFetchError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client is the fetch surface the rest of the agent plane depends on.
type Client interface {
	// FetchConfig returns the tenant's configuration snapshot. The snapshot
	// is not validated here; the resolver owns the required-field invariant.
	FetchConfig(ctx context.Context, tenantKey string) (*models.TenantConfig, error)

	// IdentifyTenant resolves a caller phone number to a tenant key.
	// Returns ("", nil) when the number is unknown.
	IdentifyTenant(ctx context.Context, phone string) (string, error)

	// ReportOutcome posts an end-of-call report.
	ReportOutcome(ctx context.Context, report models.CallReport) error
}

// Config configures the HTTP client.
type Config struct {
	BaseURL    string
	Token      string        // bearer credential; empty disables the header
	Timeout    time.Duration // per-attempt timeout
	RetryMax   int           // total attempts, including the first
	RetryDelay time.Duration // initial backoff interval
}

// HTTPClient implements Client against the platform backend API.
type HTTPClient struct {
	baseURL    string
	token      string
	retryMax   int
	retryDelay time.Duration
	client     *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client with defaults filled in for unset options.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		retryMax:   cfg.RetryMax,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchConfig retrieves GET /customer-config/{tenantKey}.
func (h *HTTPClient) FetchConfig(ctx context.Context, tenantKey string) (*models.TenantConfig, error) {
	var cfg models.TenantConfig
	err := h.doJSON(ctx, http.MethodGet, "/customer-config/"+url.PathEscape(tenantKey), tenantKey, nil, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TenantID == "" {
		cfg.TenantID = tenantKey
	}
	cfg.FetchedAt = time.Now().UTC()
	return &cfg, nil
}

// IdentifyTenant retrieves GET /customer-config/identify?phone=….
// A 404 means the number is simply unknown and is not an error.
func (h *HTTPClient) IdentifyTenant(ctx context.Context, phone string) (string, error) {
	var resp struct {
		TenantID string `json:"tenant_id"`
	}
	err := h.doJSON(ctx, http.MethodGet, "/customer-config/identify?phone="+url.QueryEscape(phone), "", nil, &resp)
	if err != nil {
		var fe *ConfigFetchError
		if errors.As(err, &fe) && fe.NotFound() {
			return "", nil
		}
		return "", err
	}
	return resp.TenantID, nil
}

// ReportOutcome posts POST /call-reports.
func (h *HTTPClient) ReportOutcome(ctx context.Context, report models.CallReport) error {
	return h.doJSON(ctx, http.MethodPost, "/call-reports", report.TenantKey, report, nil)
}

// doJSON runs one backend call with the retry policy. Requests are rebuilt
// per attempt so the body can be resent. 4xx responses are permanent; 5xx
// and transport errors retry until the attempt budget runs out.
func (h *HTTPClient) doJSON(ctx context.Context, method, path, tenantKey string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return &ConfigFetchError{TenantKey: tenantKey, Attempts: 0, Err: fmt.Errorf("marshal request: %w", err)}
		}
	}

	attempts := 0
	lastStatus := 0

	operation := func() error {
		attempts++
		lastStatus = 0

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if h.token != "" {
			req.Header.Set("Authorization", "Bearer "+h.token)
		}
		if tenantKey != "" {
			req.Header.Set("X-Tenant-Key", tenantKey)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, path))
		default:
			return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.retryDelay

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(h.retryMax-1)), ctx))
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenant", tenantKey).
			Str("path", path).
			Int("attempts", attempts).
			Msg("Backend request failed")
		return &ConfigFetchError{TenantKey: tenantKey, Status: lastStatus, Attempts: attempts, Err: err}
	}
	return nil
}
