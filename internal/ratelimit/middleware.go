package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
)

// KeyFunc derives the limiter key for a request.
type KeyFunc func(r *http.Request) string

// Middleware returns HTTP middleware that applies limiter to every request,
// keyed by keyFunc. Denied requests get 429 with a JSON error body.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			allowed, info := limiter.Allow(key)

			// Always set rate limit headers
			SetHeaders(w.Header(), info)

			if !allowed {
				retryAfterSecs := RetryAfterSeconds(info.RetryAfter)
				WriteTooManyRequests(w, "Rate limit exceeded", retryAfterSecs, r.Header.Get("X-Request-ID"))

				slog.Warn("Rate limit exceeded",
					"identifier", key,
					"limit", info.Limit,
					"retry_after", retryAfterSecs,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteTooManyRequests writes a 429 response with Retry-After and a JSON
// error body.
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfterSecs int, requestID string) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	errorResp := models.NewErrorResponse(message, models.ErrorCodeRateLimitExceeded)
	errorResp.RequestID = requestID
	errorResp.Details = map[string]int{"retry_after_seconds": retryAfterSecs}
	json.NewEncoder(w).Encode(errorResp)
}
