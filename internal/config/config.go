// Package config loads the agent plane's configuration: environment first
// (SMILEDESK_* variables), with an optional config.yaml for local
// development and code-level defaults underneath.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the SmileDesk agent plane.
type Config struct {
	Port    int
	Version string

	Backend   BackendConfig
	Cache     CacheConfig
	Prewarm   PrewarmConfig
	Telemetry TelemetryConfig
}

// BackendConfig locates the platform backend serving tenant configuration.
type BackendConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration // per-attempt
	RetryMax   int
	RetryDelay time.Duration
}

// CacheConfig tunes the config cache and tenant identification.
type CacheConfig struct {
	TTL           time.Duration
	DefaultTenant string
	PhoneTTL      time.Duration // phone-directory lookup cache
}

// PrewarmConfig lists tenants kept warm across TTL boundaries.
type PrewarmConfig struct {
	Tenants  []string
	Interval time.Duration // 0 disables periodic refresh
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from the environment, an optional config.yaml in
// the working directory, and built-in defaults, in that priority order.
func Load() *Config {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("version", "0.4.0")
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.retry_max", 3)
	v.SetDefault("backend.retry_delay", "1s")
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.default_tenant", "westbury")
	v.SetDefault("cache.phone_ttl", "10m")
	v.SetDefault("prewarm.tenants", "")
	v.SetDefault("prewarm.interval", "0s")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "smiledesk-agent-plane")

	v.BindEnv("port", "SMILEDESK_PORT")
	v.BindEnv("version", "SMILEDESK_VERSION")
	v.BindEnv("backend.url", "SMILEDESK_BACKEND_URL")
	v.BindEnv("backend.token", "SMILEDESK_BACKEND_TOKEN")
	v.BindEnv("backend.timeout", "SMILEDESK_BACKEND_TIMEOUT")
	v.BindEnv("backend.retry_max", "SMILEDESK_BACKEND_RETRY_MAX")
	v.BindEnv("backend.retry_delay", "SMILEDESK_BACKEND_RETRY_DELAY")
	v.BindEnv("cache.ttl", "SMILEDESK_CACHE_TTL")
	v.BindEnv("cache.default_tenant", "SMILEDESK_DEFAULT_TENANT")
	v.BindEnv("cache.phone_ttl", "SMILEDESK_PHONE_CACHE_TTL")
	v.BindEnv("prewarm.tenants", "SMILEDESK_PREWARM_TENANTS")
	v.BindEnv("prewarm.interval", "SMILEDESK_PREWARM_INTERVAL")
	v.BindEnv("telemetry.enabled", "OTEL_ENABLED")
	v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")

	// Optional local-dev overrides; absence is not an error.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	return &Config{
		Port:    v.GetInt("port"),
		Version: v.GetString("version"),
		Backend: BackendConfig{
			URL:        v.GetString("backend.url"),
			Token:      v.GetString("backend.token"),
			Timeout:    v.GetDuration("backend.timeout"),
			RetryMax:   v.GetInt("backend.retry_max"),
			RetryDelay: v.GetDuration("backend.retry_delay"),
		},
		Cache: CacheConfig{
			TTL:           v.GetDuration("cache.ttl"),
			DefaultTenant: v.GetString("cache.default_tenant"),
			PhoneTTL:      v.GetDuration("cache.phone_ttl"),
		},
		Prewarm: PrewarmConfig{
			Tenants:  splitList(v.GetString("prewarm.tenants")),
			Interval: v.GetDuration("prewarm.interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("telemetry.enabled"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			ServiceName:  v.GetString("telemetry.service_name"),
		},
	}
}

// splitList parses a comma-separated tenant list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
