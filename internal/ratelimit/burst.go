package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket holds a token bucket and its last access time for cleanup.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BurstGuard is an in-memory flood guard backed by golang.org/x/time/rate.
// Each client address gets its own token bucket. A background goroutine
// evicts buckets that have been idle for twice the cleanup interval.
type BurstGuard struct {
	rate            rate.Limit
	burst           int
	limit           int // requests per minute, for Info.Limit
	cleanupInterval time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	closed  bool
}

// NewBurstGuard creates a guard with the given requests-per-minute rate,
// burst size and cleanup interval, and starts its eviction goroutine.
func NewBurstGuard(requestsPerMinute int, burst int, cleanupInterval time.Duration) *BurstGuard {
	g := &BurstGuard{
		rate:            rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:           burst,
		limit:           requestsPerMinute,
		cleanupInterval: cleanupInterval,
		buckets:         make(map[string]*bucket),
		done:            make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// Allow takes one token from key's bucket.
func (g *BurstGuard) Allow(key string) (bool, Info) {
	g.mu.Lock()
	b, exists := g.buckets[key]
	if !exists {
		b = &bucket{
			limiter: rate.NewLimiter(g.rate, g.burst),
		}
		g.buckets[key] = b
	}
	b.lastSeen = time.Now()
	g.mu.Unlock()

	allowed := b.limiter.Allow()

	now := time.Now()
	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	// Reset is when the bucket is full again
	resetAt := now
	if tokensNeeded := float64(g.burst) - tokens; tokensNeeded > 0 {
		resetAt = now.Add(time.Duration(tokensNeeded / float64(g.rate) * float64(time.Second)))
	}

	info := Info{
		Limit:     g.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !allowed {
		reservation := b.limiter.Reserve()
		info.RetryAfter = reservation.Delay()
		reservation.Cancel()
	}

	return allowed, info
}

// Len reports how many buckets are currently tracked.
func (g *BurstGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}

// Close stops the background cleanup goroutine.
func (g *BurstGuard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
}

func (g *BurstGuard) cleanup() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.evictIdle()
		}
	}
}

func (g *BurstGuard) evictIdle() {
	cutoff := time.Now().Add(-2 * g.cleanupInterval)
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, b := range g.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(g.buckets, key)
		}
	}
}
