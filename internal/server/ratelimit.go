package server

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// rateLimitContextKey is the context key for rate limit info
type rateLimitContextKey struct{}

// RateLimitInfo carries the outcome of a fixed-window rate limit check so
// the middleware can surface it as response headers. A zero Limit means no
// check ran and no headers are written.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   int64 // unix seconds when the current window closes
}

// SetRateLimits records a rate limit decision in the request-scoped info
// seeded by RateLimitHeaderMiddleware. Mirrors AddLogField: a mutable
// holder installed up front, filled in by whoever ran the check. No-op if
// the middleware isn't present.
func SetRateLimits(ctx context.Context, limit, remaining int, resetAt int64) {
	if rl, ok := ctx.Value(rateLimitContextKey{}).(*RateLimitInfo); ok {
		rl.Limit = limit
		rl.Remaining = remaining
		rl.ResetAt = resetAt
	}
}

// GetRateLimits retrieves the request-scoped rate limit info.
// Returns nil if the middleware isn't present.
func GetRateLimits(ctx context.Context) *RateLimitInfo {
	if rl, ok := ctx.Value(rateLimitContextKey{}).(*RateLimitInfo); ok {
		return rl
	}
	return nil
}

// RateLimitHeaderMiddleware writes X-RateLimit-* headers for handlers that
// ran a limiter check and recorded it via SetRateLimits. On a 429 it
// additionally writes Retry-After with the seconds until the window
// resets.
func RateLimitHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &RateLimitInfo{}
		r = r.WithContext(context.WithValue(r.Context(), rateLimitContextKey{}, info))
		wrapped := &rateLimitResponseWriter{
			ResponseWriter: w,
			info:           info,
		}
		next.ServeHTTP(wrapped, r)
	})
}

// rateLimitResponseWriter wraps ResponseWriter to write rate limit headers.
type rateLimitResponseWriter struct {
	http.ResponseWriter
	info         *RateLimitInfo
	wroteHeaders bool
}

func (rw *rateLimitResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeaders {
		rw.writeRateLimitHeaders(code)
		rw.wroteHeaders = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *rateLimitResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeaders {
		rw.writeRateLimitHeaders(http.StatusOK)
		rw.wroteHeaders = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *rateLimitResponseWriter) writeRateLimitHeaders(code int) {
	if rw.info == nil || rw.info.Limit <= 0 {
		return
	}

	h := rw.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rw.info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(rw.info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rw.info.ResetAt, 10))

	if code == http.StatusTooManyRequests {
		retry := rw.info.ResetAt - time.Now().Unix()
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.FormatInt(retry, 10))
	}
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (rw *rateLimitResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
