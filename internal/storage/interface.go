// Package storage provides the key-value persistence used by the rate limiter.
// Every backend offers the same small contract: get, set with an optional
// TTL, delete, and list keys by prefix.
package storage

import (
	"context"
	"time"
)

// Storage defines the interface for key-value persistence.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound when the key is
	// absent or its TTL has elapsed.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A ttl of zero or less means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every live key that starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases connections and file handles.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, json, sqlite, postgres, redis)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Table overrides the default table name for SQL backends
	Table string `json:"table,omitempty" yaml:"table,omitempty"`

	// MaxOpenConns caps the SQL connection pool
	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`

	// Redis holds connection settings for the redis backend
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

const defaultTable = "kv_entries"

func (c Config) table() string {
	if c.Table != "" {
		return c.Table
	}
	return defaultTable
}
