// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Machine-readable error codes next to human-readable messages
// - RFC3339 timestamps
package models

import (
	"sort"
	"time"
)

// AdmissionResponse is returned when a request passed every admission check
// and was handed to the downstream backend.
type AdmissionResponse struct {
	Status    string         `json:"status"`               // Always "accepted"
	Action    string         `json:"action"`               // Rate-limit action that admitted the request
	RequestID string         `json:"request_id,omitempty"` // Echo of X-Request-ID
	Reference string         `json:"reference,omitempty"`  // Receipt reference from the backend hand-off
	Data      any            `json:"data,omitempty"`       // Normalized payload, secrets redacted
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"` // Counter state after this request
}

// RateLimitInfo mirrors the X-RateLimit-* headers in the response body.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitPolicyInfo describes one configured action policy.
type RateLimitPolicyInfo struct {
	Action      string `json:"action"`
	MaxAttempts int    `json:"max_attempts"`
	Window      string `json:"window"`
}

type ListPoliciesResponse struct {
	Policies   []RateLimitPolicyInfo `json:"policies"`
	TotalCount int                   `json:"total_count"`
}

type ResetRateLimitResponse struct {
	Message    string `json:"message"`
	Action     string `json:"action,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// ErrorResponse provides structured error information.
//
// Error Categories:
// - Validation errors: Details carries the per-field messages
// - Rate limit errors: Details carries the retry hint
// - Authorization errors: admin token missing or wrong
// - Internal errors: Server-side issues
type ErrorResponse struct {
	Error     string    `json:"error"`                // Error type (always "error")
	Message   string    `json:"message"`              // Human-readable error description
	Code      string    `json:"code,omitempty"`       // Machine-readable error code
	Details   any       `json:"details,omitempty"`    // Field errors or other context
	Timestamp time.Time `json:"timestamp"`            // Error occurrence time
	RequestID string    `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound              = "NOT_FOUND"               // 404: Resource doesn't exist
	ErrorCodeBadRequest            = "BAD_REQUEST"             // 400: Invalid request format
	ErrorCodeInvalidRequest        = "INVALID_REQUEST"         // 400: Invalid request data
	ErrorCodeValidation            = "VALIDATION_ERROR"        // 422: Input validation failed
	ErrorCodeInternalError         = "INTERNAL_ERROR"          // 500: Server-side error
	ErrorCodeUnauthorized          = "UNAUTHORIZED"            // 401: Authentication required
	ErrorCodeForbidden             = "FORBIDDEN"               // 403: Permission denied
	ErrorCodeServiceUnavailable    = "SERVICE_UNAVAILABLE"     // 503: Service temporarily down
	ErrorCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"     // 429: Too many attempts
	ErrorCodePayloadTooLarge       = "PAYLOAD_TOO_LARGE"       // 413: Body over the admission cap
	ErrorCodeClientUpgradeRequired = "CLIENT_UPGRADE_REQUIRED" // 426: Client below minimum version
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithDetails attaches context to the error and returns the same response.
func (e *ErrorResponse) WithDetails(details any) *ErrorResponse {
	e.Details = details
	return e
}

// NewListPoliciesResponse flattens a policy map into a list sorted by action.
func NewListPoliciesResponse(policies map[string]RateLimitPolicy) *ListPoliciesResponse {
	infos := make([]RateLimitPolicyInfo, 0, len(policies))
	for action, p := range policies {
		infos = append(infos, RateLimitPolicyInfo{
			Action:      action,
			MaxAttempts: p.MaxAttempts,
			Window:      p.Window.String(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Action < infos[j].Action })

	return &ListPoliciesResponse{Policies: infos, TotalCount: len(infos)}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
