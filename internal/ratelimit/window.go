package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/storage"
)

// KeyPrefix namespaces window entries in the shared store.
const KeyPrefix = "rateLimit:"

// lockStripes is the number of mutexes guarding same-identifier checks.
const lockStripes = 256

// Config is the policy for one action: at most MaxAttempts within Window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Info converts the result into header information for cfg.
func (r Result) Info(cfg Config, now time.Time) Info {
	info := Info{
		Limit:     cfg.MaxAttempts,
		Remaining: r.Remaining,
		ResetAt:   r.ResetTime,
	}
	if !r.Allowed {
		info.RetryAfter = r.ResetTime.Sub(now)
	}
	return info
}

// Entry is the persisted counter for one identifier. ResetTime is in
// milliseconds since the Unix epoch.
type Entry struct {
	Attempts  int   `json:"attempts"`
	ResetTime int64 `json:"resetTime"`
}

func (e Entry) resetAt() time.Time {
	return time.UnixMilli(e.ResetTime)
}

// Store is the subset of storage.Storage the window limiter needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// WindowLimiter is a fixed-window attempt counter persisted in a Store.
//
// Expiry is lazy: an entry whose window has passed is replaced on the next
// check. When the store fails the limiter fails open and logs a warning.
// Checks for the same identifier are serialized within one process only;
// concurrent processes sharing a store may race.
type WindowLimiter struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
	locks  [lockStripes]sync.Mutex
}

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// WithLogger overrides the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *WindowLimiter) {
		l.logger = logger
	}
}

func NewWindowLimiter(store Store, opts ...Option) *WindowLimiter {
	l := &WindowLimiter{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the limiter's current time.
func (l *WindowLimiter) Now() time.Time {
	return l.now()
}

// CheckLimit records one attempt for identifier under cfg and reports whether
// it is allowed. A denied attempt is not counted.
func (l *WindowLimiter) CheckLimit(ctx context.Context, identifier string, cfg Config) Result {
	key := KeyPrefix + identifier

	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()

	entry, err := l.load(ctx, key)
	if err != nil {
		l.logger.Warn("Rate limit store read failed, allowing request",
			"identifier", identifier,
			"error", err,
		)
		return failOpen(now, cfg)
	}

	switch {
	case entry == nil || now.UnixMilli() >= entry.ResetTime:
		entry = &Entry{Attempts: 1, ResetTime: now.Add(cfg.Window).UnixMilli()}
	case entry.Attempts >= cfg.MaxAttempts:
		return Result{Allowed: false, Remaining: 0, ResetTime: entry.resetAt()}
	default:
		entry.Attempts++
	}

	if err := l.save(ctx, key, entry, now); err != nil {
		l.logger.Warn("Rate limit store write failed, allowing request",
			"identifier", identifier,
			"error", err,
		)
		return failOpen(now, cfg)
	}

	return Result{
		Allowed:   true,
		Remaining: max(0, cfg.MaxAttempts-entry.Attempts),
		ResetTime: entry.resetAt(),
	}
}

// Reset returns identifier to a fresh window.
func (l *WindowLimiter) Reset(ctx context.Context, identifier string) error {
	key := KeyPrefix + identifier

	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", identifier, err)
	}
	return nil
}

// ClearAll removes every window entry from the store and returns how many
// were removed.
func (l *WindowLimiter) ClearAll(ctx context.Context) (int, error) {
	keys, err := l.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list rate limit entries: %w", err)
	}

	var errs []error
	removed := 0
	for _, key := range keys {
		if err := l.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func (l *WindowLimiter) load(ctx context.Context, key string) (*Entry, error) {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Attempts < 0 {
		l.logger.Debug("Discarding unreadable rate limit entry", "entry", key)
		return nil, nil
	}
	return &entry, nil
}

func (l *WindowLimiter) save(ctx context.Context, key string, entry *Entry, now time.Time) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit entry: %w", err)
	}
	return l.store.Set(ctx, key, string(data), entry.resetAt().Sub(now))
}

func (l *WindowLimiter) lockFor(key string) *sync.Mutex {
	return &l.locks[xxhash.Sum64String(key)%lockStripes]
}

func failOpen(now time.Time, cfg Config) Result {
	return Result{
		Allowed:   true,
		Remaining: cfg.MaxAttempts,
		ResetTime: now.Add(cfg.Window),
	}
}
