package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey keeps this package's context values unforgeable from outside.
type contextKey string

// RequestIDKey holds the id RequestIDMiddleware assigns to each request.
const RequestIDKey contextKey = "request_id"

// RequestIDMiddleware tags every request with a fresh uuid, carried in the
// context for log correlation and echoed back as X-Request-ID so supporters
// reporting a problem can quote it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id, or empty when the middleware did
// not run.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
