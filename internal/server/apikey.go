package server

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared key for operator-facing endpoints.
const APIKeyHeader = "x-coffee-api-key"

// APIKeyMiddleware guards a route subtree with a single shared API key.
// If the configured key is empty, the middleware is a no-op so local
// development doesn't need credentials.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(APIKeyHeader)
			if presented == "" {
				http.Error(w, "Missing API key", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
