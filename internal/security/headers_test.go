package security

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplySecurityHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Content-Type", "application/json")

	ApplySecurityHeaders(h)

	assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "default-src 'self'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Len(t, h.Values("X-Frame-Options"), 1)
}

func TestWaitMessage(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{0, "Too many attempts. Please try again in 1 minute(s)."},
		{-time.Minute, "Too many attempts. Please try again in 1 minute(s)."},
		{10 * time.Second, "Too many attempts. Please try again in 1 minute(s)."},
		{time.Minute, "Too many attempts. Please try again in 1 minute(s)."},
		{time.Minute + time.Second, "Too many attempts. Please try again in 2 minute(s)."},
		{59 * time.Minute, "Too many attempts. Please try again in 59 minute(s)."},
	}

	for _, tt := range tests {
		t.Run(tt.wait.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, WaitMessage(tt.wait))
		})
	}
}

func TestRateLimitError(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := newRateLimitError("10.0.0.1", "login", 5, now.Add(90*time.Second), now)

	assert.Equal(t, "Too many attempts. Please try again in 2 minute(s).", err.Error())
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 90*time.Second, err.RetryAfter)
}
