// Package ratelimit bounds how often an identifier may perform an action.
//
// Two limiters live here. WindowLimiter keeps a fixed-window attempt counter
// per identifier in a key-value store, so counts survive restarts and can be
// shared between instances. BurstGuard is an in-process token bucket used as
// a coarse flood guard in front of every route.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"
)

// Limiter defines the contract of the in-process flood guard.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Approximate requests remaining
	ResetAt    time.Time     // When the quota is restored
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// SetHeaders writes the X-RateLimit-* headers for info.
func SetHeaders(h http.Header, info Info) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))
}

// RetryAfterSeconds rounds a wait up to whole seconds for the Retry-After header.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
