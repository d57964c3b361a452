package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/ratelimit"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/security"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRateLimiter adds rate limiting middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// WithBurstGuard puts guard in front of every route, keyed by client address.
func WithBurstGuard(guard ratelimit.Limiter, trustProxy bool) RouteOption {
	return WithRateLimiter(ratelimit.Middleware(guard, func(r *http.Request) string {
		return security.ClientIdentifier(r, trustProxy)
	}))
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(clientVersionMiddleware(config.Security.MinClientVersion))

	for _, ep := range Endpoints {
		guarded := security.Middleware(handlers.gate, ep.Action)(handlers.Admit(ep))
		api.Handle(ep.Path, guarded).Methods(ep.Method)
	}

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(adminAuthMiddleware(config.Security.AdminToken))
	admin.HandleFunc("/ratelimit/policies", handlers.ListRateLimitPolicies).Methods(http.MethodGet)
	admin.HandleFunc("/ratelimit/{action}/{identifier}", handlers.ResetRateLimit).Methods(http.MethodDelete)
	admin.HandleFunc("/ratelimit", handlers.ClearRateLimits).Methods(http.MethodDelete)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}
