package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements the Storage interface on a PostgreSQL table
// accessed through a pgx connection pool.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
	prune pruneSchedule
}

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures
// the key-value table exists.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	table := config.table()
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at BIGINT
	)`, table)
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresStorage{
		pool:  pool,
		table: table,
		now:   time.Now,
	}, nil
}

// Get returns the value stored under key.
func (ps *PostgresStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	var deadline *int64

	query := fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = $1`, ps.table)
	err := ps.pool.QueryRow(ctx, query, key).Scan(&value, &deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if deadline != nil && expired(sql.NullInt64{Int64: *deadline, Valid: true}, ps.now()) {
		return "", ErrNotFound
	}
	return value, nil
}

// Set upserts value under key.
func (ps *PostgresStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := ps.now()

	var deadline *int64
	if exp := expiresAt(now, ttl); exp.Valid {
		deadline = &exp.Int64
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, ps.table)
	if _, err := ps.pool.Exec(ctx, query, key, value, deadline); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	ps.pruneExpired(ctx, now)
	return nil
}

// pruneExpired sweeps expired rows when due. Failures are logged only; the
// upsert has already succeeded.
func (ps *PostgresStorage) pruneExpired(ctx context.Context, now time.Time) {
	if !ps.prune.due(now) {
		return
	}
	cleanup := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, ps.table)
	if _, err := ps.pool.Exec(ctx, cleanup, now.UnixMilli()); err != nil {
		slog.Warn("Failed to prune expired keys", "table", ps.table, "error", err)
	}
}

// Delete removes key.
func (ps *PostgresStorage) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, ps.table)
	if _, err := ps.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns the live keys starting with prefix, sorted.
func (ps *PostgresStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s
		WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key`, ps.table)
	rows, err := ps.pool.Query(ctx, query, likePrefix(prefix), ps.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect keys: %w", err)
	}
	return keys, nil
}

// Ping checks the database connection.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
