package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultJSONCacheTTL = 5 * time.Second

// JSONStorage implements the Storage interface using a single JSON file.
// Reads are served from an in-memory copy that is refreshed when the file
// changes on disk; every mutation rewrites the file atomically.
type JSONStorage struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
	cacheExpiry  time.Time
	now          func() time.Time
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Entries     map[string]JSONEntry `json:"entries"`
	LastUpdated time.Time            `json:"last_updated"`
}

// JSONEntry is one stored value. ExpiresAt is unix milliseconds, zero for no expiry.
type JSONEntry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

func (e JSONEntry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now.UnixMilli()
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{
		filePath: config.Path,
		cacheTTL: defaultJSONCacheTTL,
		now:      time.Now,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.saveData(&JSONData{Entries: map[string]JSONEntry{}})
	}
	return nil
}

// loadData refreshes the in-memory copy when the cache has expired and the
// file has changed. It uses double-checked locking: a read-lock fast path
// for cache hits and a write-lock slow path that re-validates before I/O.
func (j *JSONStorage) loadData() error {
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if data.Entries == nil {
		data.Entries = map[string]JSONEntry{}
	}

	j.data = &data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData writes data to a temporary file and renames it over the target.
// Callers must hold the write lock once the store is initialized.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.filePath), ".kv-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, j.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}
	return nil
}

// Get returns the value stored under key.
func (j *JSONStorage) Get(ctx context.Context, key string) (string, error) {
	if err := j.loadData(); err != nil {
		return "", err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, ok := j.data.Entries[key]
	if !ok || entry.expired(j.now()) {
		return "", ErrNotFound
	}
	return entry.Value, nil
}

// Set stores value under key and persists the file.
func (j *JSONStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JSONEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = j.now().Add(ttl).UnixMilli()
	}
	j.data.Entries[key] = entry
	j.pruneExpired()
	return j.saveData(j.data)
}

// Delete removes key and persists the file when something changed.
func (j *JSONStorage) Delete(ctx context.Context, key string) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.data.Entries[key]; !ok {
		return nil
	}
	delete(j.data.Entries, key)
	return j.saveData(j.data)
}

// Keys returns the live keys starting with prefix, sorted.
func (j *JSONStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	now := j.now()
	keys := make([]string, 0)
	for k, e := range j.data.Entries {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// pruneExpired drops expired entries so the file does not grow without bound.
// Callers must hold the write lock.
func (j *JSONStorage) pruneExpired() {
	now := j.now()
	for k, e := range j.data.Entries {
		if e.expired(now) {
			delete(j.data.Entries, k)
		}
	}
}

// Ping verifies the backing file is still readable.
func (j *JSONStorage) Ping(_ context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("json storage unavailable: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already flushed.
func (j *JSONStorage) Close() error {
	return nil
}
