// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, storage, security, ...)
// - Defaults that work out of the box for a single instance
// - Validation at load time so misconfigurations fail fast
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/seancfoley/ipaddress-go/ipaddr"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// DefaultRateLimitAction is the policy applied to actions without their own entry.
const DefaultRateLimitAction = "default"

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: key-value backend for rate-limit counters
// - Security: rate-limit policies, exemptions, admin access
// - Logging: structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: service identity and tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	Table        string `yaml:"table" json:"table"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RateLimitPolicy caps attempts for one action within a fixed window.
type RateLimitPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Window      time.Duration `yaml:"window" json:"window"`
}

type SecurityConfig struct {
	// RateLimits maps an action name to its policy. The "default" entry
	// applies to any action without its own policy.
	RateLimits map[string]RateLimitPolicy `yaml:"rate_limits" json:"rate_limits"`

	// ExemptCIDRs lists networks whose requests bypass action rate limits.
	ExemptCIDRs []string `yaml:"exempt_cidrs" json:"exempt_cidrs"`

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP for client identification.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`

	// MaxBodyBytes caps request bodies parsed by the admission gate.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`

	// AdminToken guards the /admin endpoints. Empty disables them.
	AdminToken string `yaml:"admin_token" json:"-"`

	// MinClientVersion rejects clients that report an older X-Client-Version.
	MinClientVersion string `yaml:"min_client_version" json:"min_client_version"`

	BurstGuard BurstGuardConfig `yaml:"burst_guard" json:"burst_guard"`
}

// BurstGuardConfig configures the router-wide token bucket per client address.
type BurstGuardConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultRateLimits returns the built-in per-action policies. Stricter
// ceilings go to actions that are costly or attractive to abuse.
func DefaultRateLimits() map[string]RateLimitPolicy {
	return map[string]RateLimitPolicy{
		"login":                 {MaxAttempts: 5, Window: 15 * time.Minute},
		"signup":                {MaxAttempts: 3, Window: time.Hour},
		"order_create":          {MaxAttempts: 10, Window: time.Hour},
		"review_create":         {MaxAttempts: 5, Window: time.Hour},
		"payment":               {MaxAttempts: 5, Window: time.Hour},
		"refund":                {MaxAttempts: 3, Window: time.Hour},
		"search":                {MaxAttempts: 60, Window: time.Minute},
		"loyalty_redeem":        {MaxAttempts: 10, Window: time.Hour},
		"support_ticket":        {MaxAttempts: 5, Window: time.Hour},
		"profile_update":        {MaxAttempts: 20, Window: time.Hour},
		DefaultRateLimitAction:  {MaxAttempts: 100, Window: 15 * time.Minute},
	}
}

// NewDefaultConfig creates a configuration with single-instance defaults:
// in-memory counters, built-in rate-limit policies, JSON logs on stdout and
// metrics on :9090.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/ratelimit.json",
			Database: DatabaseConfig{
				Table:        "kv_entries",
				MaxOpenConns: 10,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "gatekeeper:",
			},
		},
		Security: SecurityConfig{
			RateLimits:        DefaultRateLimits(),
			ExemptCIDRs:       []string{},
			TrustProxyHeaders: true,
			MaxBodyBytes:      1 << 20,
			BurstGuard: BurstGuardConfig{
				Enabled:           true,
				RequestsPerMinute: 300,
				BurstSize:         50,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite, StorageTypeRedis}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	switch stc.Type {
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("redis address is required for redis storage")
		}
	}

	if stc.Database.MaxOpenConns < 0 {
		return errors.New("max open connections cannot be negative")
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	for action, policy := range sec.RateLimits {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("rate limit %q: %w", action, err)
		}
	}

	for _, cidr := range sec.ExemptCIDRs {
		if addr, err := ipaddr.NewIPAddressString(cidr).ToAddress(); err != nil || addr == nil {
			return fmt.Errorf("invalid exempt CIDR %q", cidr)
		}
	}

	if sec.MaxBodyBytes < 0 {
		return errors.New("max body bytes cannot be negative")
	}

	if sec.MinClientVersion != "" {
		if _, err := semver.NewVersion(sec.MinClientVersion); err != nil {
			return fmt.Errorf("invalid min client version: %w", err)
		}
	}

	if sec.BurstGuard.Enabled {
		if sec.BurstGuard.RequestsPerMinute <= 0 {
			return errors.New("burst guard requests per minute must be positive")
		}
		if sec.BurstGuard.BurstSize <= 0 {
			return errors.New("burst guard burst size must be positive")
		}
		if sec.BurstGuard.CleanupInterval <= 0 {
			return errors.New("burst guard cleanup interval must be positive")
		}
	}

	return nil
}

func (p RateLimitPolicy) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if p.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when tracing exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("tracing sample rate must be between 0 and 1")
	}

	return nil
}
