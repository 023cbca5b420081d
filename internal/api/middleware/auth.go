package middleware

import (
	"net/http"

	"github.com/daap14/hafgate/internal/api/response"
	"github.com/daap14/hafgate/internal/auth"
)

// APIKeyHeader carries the admin key.
const APIKeyHeader = "X-API-Key"

// AdminKey rejects requests without a valid admin key with 401. It passes
// everything through when authService is disabled.
func AdminKey(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authService.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			requestID := GetRequestID(r.Context())

			rawKey := r.Header.Get(APIKeyHeader)
			if rawKey == "" {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required", requestID)
				return
			}
			if err := authService.Authenticate(rawKey); err != nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
