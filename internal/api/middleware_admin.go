package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
)

const bearerPrefix = "Bearer "

// adminAuthMiddleware guards the /admin API with a static bearer token.
// With no token configured the admin API answers 404 as if it did not exist.
func adminAuthMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Authorization required")
				return
			}
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeError(w, r, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid authorization format")
				return
			}

			if !isValidAdminToken(strings.TrimPrefix(authHeader, bearerPrefix), token) {
				slog.Warn("Rejected admin request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeError(w, r, http.StatusForbidden, models.ErrorCodeForbidden, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAdminToken compares in constant time.
func isValidAdminToken(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
