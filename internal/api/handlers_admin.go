package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/sanitize"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/security"
)

// ListRateLimitPolicies returns every configured action policy.
// GET /admin/ratelimit/policies
func (h *Handlers) ListRateLimitPolicies(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.NewListPoliciesResponse(h.gate.Policies()))
}

// ResetRateLimit clears one identifier's window for one action, e.g. after
// a support agent has verified a locked-out customer.
// DELETE /admin/ratelimit/{action}/{identifier}
func (h *Handlers) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := sanitize.Input(vars["action"])
	identifier := sanitize.Input(vars["identifier"])

	if action == "" || identifier == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "action and identifier are required")
		return
	}

	// Windows are keyed by canonical address.
	identifier = security.CanonicalIdentifier(identifier)

	if err := h.gate.Reset(r.Context(), identifier, action); err != nil {
		slog.Error("Failed to reset rate limit", "action", action, "identifier", identifier, "error", err)
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Failed to reset rate limit")
		return
	}

	slog.Info("Rate limit reset by admin",
		"action", action,
		"identifier", identifier,
		"remote_addr", r.RemoteAddr,
	)

	h.writeJSONResponse(w, http.StatusOK, &models.ResetRateLimitResponse{
		Message:    "Rate limit window cleared",
		Action:     action,
		Identifier: identifier,
	})
}

// ClearRateLimits removes every stored window.
// DELETE /admin/ratelimit
func (h *Handlers) ClearRateLimits(w http.ResponseWriter, r *http.Request) {
	removed, err := h.gate.ClearAll(r.Context())
	if err != nil {
		slog.Error("Failed to clear rate limits", "removed", removed, "error", err)
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable,
			fmt.Sprintf("Cleared %d rate limit windows before failing", removed))
		return
	}

	slog.Info("All rate limits cleared by admin", "removed", removed, "remote_addr", r.RemoteAddr)

	h.writeJSONResponse(w, http.StatusOK, &models.ResetRateLimitResponse{
		Message: fmt.Sprintf("Cleared %d rate limit windows", removed),
	})
}
