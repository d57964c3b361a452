package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface on a single SQLite table.
// Expired rows are ignored on read and swept at most once per minute on write.
type SQLiteStorage struct {
	db    *sql.DB
	table string
	now   func() time.Time
	prune pruneSchedule
}

// NewSQLiteStorage opens the database at config.ConnectionString and creates
// the key-value table if needed.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	table := config.table()
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at INTEGER
	)`, table)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStorage{
		db:    db,
		table: table,
		now:   time.Now,
	}, nil
}

// Get returns the value stored under key.
func (ss *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	var deadline sql.NullInt64

	query := fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = ?`, ss.table)
	err := ss.db.QueryRowContext(ctx, query, key).Scan(&value, &deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if expired(deadline, ss.now()) {
		return "", ErrNotFound
	}
	return value, nil
}

// Set upserts value under key.
func (ss *SQLiteStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := ss.now()

	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`, ss.table)
	if _, err := ss.db.ExecContext(ctx, query, key, value, expiresAt(now, ttl)); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	ss.pruneExpired(ctx, now)
	return nil
}

// pruneExpired is best-effort: the write has already landed, so a failed
// sweep is logged and left for the next one.
func (ss *SQLiteStorage) pruneExpired(ctx context.Context, now time.Time) {
	if !ss.prune.due(now) {
		return
	}
	cleanup := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= ?`, ss.table)
	if _, err := ss.db.ExecContext(ctx, cleanup, now.UnixMilli()); err != nil {
		slog.Warn("Failed to prune expired keys", "table", ss.table, "error", err)
	}
}

// Delete removes key.
func (ss *SQLiteStorage) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, ss.table)
	if _, err := ss.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns the live keys starting with prefix, sorted.
func (ss *SQLiteStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	// LIKE is case-insensitive in SQLite, so compare the leading substring instead.
	query := fmt.Sprintf(`SELECT key FROM %s
		WHERE substr(key, 1, ?) = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key`, ss.table)
	rows, err := ss.db.QueryContext(ctx, query, utf8.RuneCountInString(prefix), prefix, ss.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

// Ping checks the database connection.
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
