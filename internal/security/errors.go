package security

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRateLimitExceeded is wrapped by every *RateLimitError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMalformedBody means a mutating request carried a body that is not a
	// single JSON value.
	ErrMalformedBody = errors.New("malformed request body")

	// ErrBodyTooLarge means the body exceeded the configured byte cap.
	ErrBodyTooLarge = errors.New("request body too large")
)

// RateLimitError reports a denied check. It is retryable once ResetTime passes.
type RateLimitError struct {
	Action     string
	Identifier string
	Limit      int
	ResetTime  time.Time
	RetryAfter time.Duration
	Message    string
}

func newRateLimitError(identifier, action string, limit int, resetTime, now time.Time) *RateLimitError {
	wait := resetTime.Sub(now)
	return &RateLimitError{
		Action:     action,
		Identifier: identifier,
		Limit:      limit,
		ResetTime:  resetTime,
		RetryAfter: wait,
		Message:    WaitMessage(wait),
	}
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// WaitMessage renders a wait as whole minutes, rounded up, never less than one.
func WaitMessage(wait time.Duration) string {
	minutes := int(math.Ceil(wait.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Too many attempts. Please try again in %d minute(s).", minutes)
}
