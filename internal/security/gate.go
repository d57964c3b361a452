// Package security composes sanitization, windowed rate limiting and response
// hardening into one admission gate that handlers run before doing any work.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/ratelimit"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/sanitize"
)

// DefaultMaxBodyBytes caps request bodies when the config leaves it unset.
const DefaultMaxBodyBytes int64 = 1 << 20

// Admission outcomes recorded by a DecisionRecorder.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeExempt  = "exempt"
)

// DecisionRecorder receives one call per admission decision.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, action, outcome string)
}

// Admission is what SecureRequest hands back to the caller: who the client
// is, the sanitized body, the rate-limit state and the headers to send.
type Admission struct {
	Identifier string
	Action     string
	Exempt     bool
	Data       any
	Result     ratelimit.Result
	Limit      int
	Headers    http.Header
}

// Gate is the per-process admission gate. Build one at start-up and share it.
type Gate struct {
	limiter      *ratelimit.WindowLimiter
	policies     map[string]ratelimit.Config
	exempt       *ExemptList
	trustProxy   bool
	maxBodyBytes int64
	recorder     DecisionRecorder
	logger       *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithRecorder sends every decision to rec.
func WithRecorder(rec DecisionRecorder) Option {
	return func(g *Gate) {
		g.recorder = rec
	}
}

// WithLogger overrides the gate's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate builds a gate from cfg. Policies in cfg override the built-in
// defaults action by action; actions missing from both use the "default"
// policy.
func NewGate(limiter *ratelimit.WindowLimiter, cfg models.SecurityConfig, opts ...Option) *Gate {
	policies := make(map[string]ratelimit.Config)
	for action, p := range models.DefaultRateLimits() {
		policies[action] = ratelimit.Config{MaxAttempts: p.MaxAttempts, Window: p.Window}
	}
	for action, p := range cfg.RateLimits {
		policies[action] = ratelimit.Config{MaxAttempts: p.MaxAttempts, Window: p.Window}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	g := &Gate{
		limiter:      limiter,
		policies:     policies,
		exempt:       NewExemptList(cfg.ExemptCIDRs),
		trustProxy:   cfg.TrustProxyHeaders,
		maxBodyBytes: maxBody,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the configuration applied to action.
func (g *Gate) Policy(action string) ratelimit.Config {
	if cfg, ok := g.policies[action]; ok {
		return cfg
	}
	return g.policies[models.DefaultRateLimitAction]
}

// Policies returns a copy of every configured policy.
func (g *Gate) Policies() map[string]models.RateLimitPolicy {
	out := make(map[string]models.RateLimitPolicy, len(g.policies))
	for action, cfg := range g.policies {
		out[action] = models.RateLimitPolicy{MaxAttempts: cfg.MaxAttempts, Window: cfg.Window}
	}
	return out
}

// HasPolicy reports whether action has its own policy.
func (g *Gate) HasPolicy(action string) bool {
	_, ok := g.policies[action]
	return ok
}

// RateLimit counts one attempt of action by identifier. A denied attempt
// returns the result together with a *RateLimitError.
func (g *Gate) RateLimit(ctx context.Context, identifier, action string) (ratelimit.Result, error) {
	cfg := g.Policy(action)
	res := g.limiter.CheckLimit(ctx, windowKey(identifier, action), cfg)

	if !res.Allowed {
		g.record(ctx, action, OutcomeDenied)
		return res, newRateLimitError(identifier, action, cfg.MaxAttempts, res.ResetTime, g.limiter.Now())
	}

	g.record(ctx, action, OutcomeAllowed)
	return res, nil
}

// SanitizeUserInput trims and bounds every string leaf of v.
func (g *Gate) SanitizeUserInput(v any) any {
	return sanitize.UserInput(v)
}

// SecureRequest runs the admission steps for r in order: identify the client,
// apply the action's rate limit, decode and sanitize the body of mutating
// requests, and collect response headers. The body is consumed.
func (g *Gate) SecureRequest(r *http.Request, action string) (*Admission, error) {
	identifier, addr := clientAddress(r, g.trustProxy)
	cfg := g.Policy(action)

	adm := &Admission{
		Identifier: identifier,
		Action:     action,
		Limit:      cfg.MaxAttempts,
		Headers:    make(http.Header),
	}

	if g.exempt.Contains(addr) {
		adm.Exempt = true
		adm.Result = ratelimit.Result{Allowed: true, Remaining: cfg.MaxAttempts, ResetTime: g.limiter.Now().Add(cfg.Window)}
		g.record(r.Context(), action, OutcomeExempt)
	} else {
		res, err := g.RateLimit(r.Context(), identifier, action)
		adm.Result = res
		if err != nil {
			return adm, err
		}
	}

	if isMutating(r.Method) {
		data, err := g.decodeBody(r)
		if err != nil {
			return adm, err
		}
		adm.Data = g.SanitizeUserInput(data)
	}

	ApplySecurityHeaders(adm.Headers)
	if !adm.Exempt {
		ratelimit.SetHeaders(adm.Headers, adm.Result.Info(cfg, g.limiter.Now()))
	}

	return adm, nil
}

// Reset clears identifier's window for action.
func (g *Gate) Reset(ctx context.Context, identifier, action string) error {
	return g.limiter.Reset(ctx, windowKey(identifier, action))
}

// ClearAll clears every window and returns how many were removed.
func (g *Gate) ClearAll(ctx context.Context) (int, error) {
	removed, err := g.limiter.ClearAll(ctx)
	g.logger.Info("Cleared rate limit windows", "removed", removed)
	return removed, err
}

func (g *Gate) decodeBody(r *http.Request) (any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, g.maxBodyBytes))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, bodyError(err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrMalformedBody)
		}
		return nil, bodyError(err)
	}

	return data, nil
}

func (g *Gate) record(ctx context.Context, action, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordDecision(ctx, action, outcome)
	}
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %v", ErrMalformedBody, err)
}

func windowKey(identifier, action string) string {
	return identifier + ":" + action
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
