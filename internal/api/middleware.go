package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/sanitize"
)

const (
	// RequestIDHeader carries the per-request correlation ID.
	RequestIDHeader = "X-Request-ID"

	// ClientVersionHeader is reported by mobile and web clients.
	ClientVersionHeader = "X-Client-Version"

	maxRequestIDLength = 64
)

// requestIDMiddleware ensures every request has an X-Request-ID. A caller
// supplied ID is kept after sanitizing; otherwise a UUID is generated.
// The ID is echoed on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitize.Input(r.Header.Get(RequestIDHeader))
		if id == "" || len([]rune(id)) > maxRequestIDLength {
			id = uuid.NewString()
		}
		r.Header.Set(RequestIDHeader, id)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// clientVersionMiddleware rejects clients older than minVersion with 426.
// Requests without X-Client-Version pass; an unparseable header is a 400.
func clientVersionMiddleware(minVersion string) mux.MiddlewareFunc {
	var constraint *semver.Version
	if minVersion != "" {
		// Validated at config load.
		constraint, _ = semver.NewVersion(minVersion)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(ClientVersionHeader)
			if constraint == nil || raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			v, err := semver.NewVersion(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid X-Client-Version header")
				return
			}

			if v.LessThan(constraint) {
				slog.Info("Rejected outdated client",
					"client_version", v.String(),
					"min_version", constraint.String(),
					"path", r.URL.Path,
				)
				errorResp := models.NewErrorResponse("Please update the app to continue", models.ErrorCodeClientUpgradeRequired).
					WithDetails(map[string]string{"min_version": constraint.String()})
				errorResp.RequestID = r.Header.Get(RequestIDHeader)
				writeJSON(w, http.StatusUpgradeRequired, errorResp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"request_id", r.Header.Get(RequestIDHeader))
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, models.ErrorCodeInvalidRequest, "Method not allowed")
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
}
