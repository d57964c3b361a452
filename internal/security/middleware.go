package security

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/ratelimit"
)

type admissionKey struct{}

// AdmissionFromContext returns the admission stored by Middleware.
func AdmissionFromContext(ctx context.Context) (*Admission, bool) {
	adm, ok := ctx.Value(admissionKey{}).(*Admission)
	return adm, ok && adm != nil
}

// ContextWithAdmission stores adm in ctx.
func ContextWithAdmission(ctx context.Context, adm *Admission) context.Context {
	return context.WithValue(ctx, admissionKey{}, adm)
}

// Middleware runs gate.SecureRequest for action before the wrapped handler.
// Rejections are written as JSON errors; admitted requests carry the
// *Admission in their context.
func Middleware(gate *Gate, action string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adm, err := gate.SecureRequest(r, action)
			if err != nil {
				writeRejection(w, r, adm, err)
				return
			}

			for name, values := range adm.Headers {
				w.Header()[name] = values
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAdmission(r.Context(), adm)))
		})
	}
}

func writeRejection(w http.ResponseWriter, r *http.Request, adm *Admission, err error) {
	ApplySecurityHeaders(w.Header())
	requestID := r.Header.Get("X-Request-ID")

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		ratelimit.SetHeaders(w.Header(), ratelimit.Info{
			Limit:     rlErr.Limit,
			Remaining: 0,
			ResetAt:   rlErr.ResetTime,
		})
		retryAfterSecs := ratelimit.RetryAfterSeconds(rlErr.RetryAfter)
		ratelimit.WriteTooManyRequests(w, rlErr.Message, retryAfterSecs, requestID)

		slog.Warn("Rate limit exceeded",
			"identifier", rlErr.Identifier,
			"action", rlErr.Action,
			"limit", rlErr.Limit,
			"retry_after", retryAfterSecs,
		)
		return
	}

	status := http.StatusBadRequest
	code := models.ErrorCodeBadRequest
	message := "Malformed request body"
	if errors.Is(err, ErrBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
		code = models.ErrorCodePayloadTooLarge
		message = "Request body too large"
	}

	if !adm.Exempt {
		ratelimit.SetHeaders(w.Header(), ratelimit.Info{
			Limit:     adm.Limit,
			Remaining: adm.Result.Remaining,
			ResetAt:   adm.Result.ResetTime,
		})
	}

	slog.Debug("Rejected request body", "action", adm.Action, "error", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	errorResp := models.NewErrorResponse(message, code)
	errorResp.RequestID = requestID
	json.NewEncoder(w).Encode(errorResp)
}
