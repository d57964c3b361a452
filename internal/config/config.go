package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "GATEKEEPER_"

// rateLimitEnvPrefix introduces per-action policy overrides, e.g.
// GATEKEEPER_RATE_LIMIT_LOGIN=5/15m.
const rateLimitEnvPrefix = EnvPrefix + "RATE_LIMIT_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors removed config fields for detecting stale operator configs.
type deprecatedConfig struct {
	Security struct {
		RateLimit      interface{} `yaml:"rate_limit"`
		TrustedProxies interface{} `yaml:"trusted_proxies"`
	} `yaml:"security"`
	Observability struct {
		ServiceVersion string `yaml:"service_version"`
	} `yaml:"observability"`
}

// warnDeprecatedKeys logs a warning for each removed config key found in the YAML data.
// The service continues to start normally - these keys are silently ignored by the main decoder.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Security.RateLimit != nil {
		slog.Warn("Config key is no longer supported; use security.burst_guard for the router-wide limit and security.rate_limits for per-action policies.", "setting", "security.rate_limit")
	}
	if dep.Security.TrustedProxies != nil {
		slog.Warn("Config key is no longer supported; set security.trust_proxy_headers instead.", "setting", "security.trusted_proxies")
	}
	if dep.Observability.ServiceVersion != "" {
		slog.Warn("Config key is no longer supported; version is now set at build time via ldflags.", "setting", "observability.service_version")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func getEnv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func envInt(name string, dst *int) {
	if v := getEnv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := getEnv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if v := getEnv(name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envString(name string, dst *string) {
	if v := getEnv(name); v != "" {
		*dst = v
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envString("DATABASE_TABLE", &config.Storage.Database.Table)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envString("REDIS_ADDR", &config.Storage.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Storage.Redis.Password)
	envInt("REDIS_DB", &config.Storage.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Storage.Redis.PoolSize)
	envString("REDIS_KEY_PREFIX", &config.Storage.Redis.KeyPrefix)

	// Security configuration
	envBool("TRUST_PROXY_HEADERS", &config.Security.TrustProxyHeaders)
	envString("ADMIN_TOKEN", &config.Security.AdminToken)
	envString("MIN_CLIENT_VERSION", &config.Security.MinClientVersion)
	if v := getEnv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Security.MaxBodyBytes = n
		}
	}
	if v := getEnv("EXEMPT_CIDRS"); v != "" {
		config.Security.ExemptCIDRs = splitList(v)
	}
	envBool("BURST_GUARD_ENABLED", &config.Security.BurstGuard.Enabled)
	envInt("BURST_GUARD_REQUESTS_PER_MINUTE", &config.Security.BurstGuard.RequestsPerMinute)
	envInt("BURST_GUARD_BURST_SIZE", &config.Security.BurstGuard.BurstSize)
	envDuration("BURST_GUARD_CLEANUP_INTERVAL", &config.Security.BurstGuard.CleanupInterval)
	loadRateLimitsFromEnvironment(config)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if v := getEnv("TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Observability.Tracing.SampleRate = f
		}
	}
}

// loadRateLimitsFromEnvironment applies GATEKEEPER_RATE_LIMIT_<ACTION>=N/window
// overrides. The action name is the lowercased suffix. Malformed values are
// logged and skipped.
func loadRateLimitsFromEnvironment(config *models.Config) {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, rateLimitEnvPrefix) {
			continue
		}
		action := strings.ToLower(strings.TrimPrefix(name, rateLimitEnvPrefix))
		if action == "" {
			continue
		}

		policy, err := ParseRateLimitPolicy(value)
		if err != nil {
			slog.Warn("Ignoring malformed rate limit override", "env", name, "error", err)
			continue
		}

		if config.Security.RateLimits == nil {
			config.Security.RateLimits = make(map[string]models.RateLimitPolicy)
		}
		config.Security.RateLimits[action] = policy
	}
}

// ParseRateLimitPolicy parses "N/duration", e.g. "5/15m" or "60/1m".
func ParseRateLimitPolicy(s string) (models.RateLimitPolicy, error) {
	attempts, window, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return models.RateLimitPolicy{}, fmt.Errorf("expected <attempts>/<window>, got %q", s)
	}

	n, err := strconv.Atoi(attempts)
	if err != nil {
		return models.RateLimitPolicy{}, fmt.Errorf("invalid attempts %q: %w", attempts, err)
	}

	d, err := time.ParseDuration(window)
	if err != nil {
		return models.RateLimitPolicy{}, fmt.Errorf("invalid window %q: %w", window, err)
	}

	policy := models.RateLimitPolicy{MaxAttempts: n, Window: d}
	if err := policy.Validate(); err != nil {
		return models.RateLimitPolicy{}, err
	}
	return policy, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	config.Security.AdminToken = "change-me-admin-token"
	config.Security.ExemptCIDRs = []string{"10.0.0.0/8"}
	config.Security.MinClientVersion = "1.0.0"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
