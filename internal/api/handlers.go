package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/intake"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/security"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/storage"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/validation"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/version"
)

// healthPingTimeout bounds the storage ping made by /health.
const healthPingTimeout = 2 * time.Second

// Endpoint binds one admission route to its rate-limit action and payload schema.
type Endpoint struct {
	Method string
	Path   string
	Action string
	Schema validation.Name
}

// Endpoints lists every admission route, relative to /api/v1.
var Endpoints = []Endpoint{
	{Method: http.MethodPost, Path: "/auth/signin", Action: intake.LoginAction, Schema: validation.SignIn},
	{Method: http.MethodPost, Path: "/auth/signup", Action: "signup", Schema: validation.SignUp},
	{Method: http.MethodPost, Path: "/orders", Action: "order_create", Schema: validation.OrderCreate},
	{Method: http.MethodPost, Path: "/reviews", Action: "review_create", Schema: validation.Review},
	{Method: http.MethodPost, Path: "/payments/intents", Action: "payment", Schema: validation.PaymentIntent},
	{Method: http.MethodPost, Path: "/refunds", Action: "refund", Schema: validation.Refund},
	{Method: http.MethodPost, Path: "/search", Action: "search", Schema: validation.Search},
	{Method: http.MethodPost, Path: "/loyalty/redemptions", Action: "loyalty_redeem", Schema: validation.LoyaltyRedemption},
	{Method: http.MethodPost, Path: "/support/tickets", Action: "support_ticket", Schema: validation.SupportTicket},
	{Method: http.MethodPut, Path: "/profile/addresses", Action: "address_update", Schema: validation.Address},
	{Method: http.MethodPut, Path: "/profile", Action: "profile_update", Schema: validation.ProfileUpdate},
}

// Handlers contains HTTP handlers for the gatekeeper API
type Handlers struct {
	intakeService intake.ServiceInterface
	gate          *security.Gate
	storage       storage.Storage
	version       version.Info
	startedAt     time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithStorage enables the storage component of /health.
func WithStorage(store storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.storage = store
	}
}

// WithVersion sets the build metadata reported by /health.
func WithVersion(ver version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = ver
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(intakeService intake.ServiceInterface, gate *security.Gate, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		intakeService: intakeService,
		gate:          gate,
		startedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Admit returns the handler for ep. It expects security.Middleware to have
// run first and stored the admission in the request context.
func (h *Handlers) Admit(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)

		adm, ok := security.AdmissionFromContext(r.Context())
		if !ok {
			slog.Error("Admission missing from request context", "action", ep.Action, "path", r.URL.Path)
			h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
			return
		}

		receipt, err := h.intakeService.Submit(r.Context(), &intake.Submission{
			Action:     ep.Action,
			Schema:     ep.Schema,
			Identifier: adm.Identifier,
			RequestID:  requestID,
			Payload:    adm.Data,
		})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		response := &models.AdmissionResponse{
			Status:    "accepted",
			Action:    ep.Action,
			RequestID: requestID,
			Reference: receipt.Reference,
			Data:      receipt.Redacted(),
		}
		if !adm.Exempt {
			response.RateLimit = &models.RateLimitInfo{
				Limit:     adm.Limit,
				Remaining: adm.Result.Remaining,
				ResetAt:   adm.Result.ResetTime,
			}
		}

		h.writeJSONResponse(w, http.StatusAccepted, response)
	}
}

// HealthCheck handles health check requests
// GET /health
// Returns 503 when the key-value store does not answer a ping.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.startedAt).Round(time.Second).String()
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.storage.Ping(ctx); err != nil {
			slog.Warn("Health check storage ping failed", "error", err)
			response.Status = models.StatusUnhealthy
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			status = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	h.writeJSONResponse(w, status, response)
}

// writeServiceError maps intake errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *intake.ServiceError
	if !errors.As(err, &svcErr) {
		slog.Error("Unexpected intake error", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if svcErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Intake failed", "code", svcErr.Code, "error", err)
	}

	errorResp := models.NewErrorResponse(svcErr.Message, svcErr.Code)
	errorResp.RequestID = r.Header.Get(RequestIDHeader)
	if svcErr.Details != nil {
		errorResp.WithDetails(svcErr.Details)
	}
	h.writeJSONResponse(w, svcErr.StatusCode, errorResp)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	writeError(w, r, statusCode, errorCode, message)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing else can be sent.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = r.Header.Get(RequestIDHeader)
	writeJSON(w, statusCode, errorResp)
}
