// Package ratelimit implements fixed-window request counting on the
// expiring key-value store.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

// Key prefixes for the supported identities.
const (
	PrefixConversation = "ratelimit:chat:"
	PrefixIP           = "ratelimit:ip:"
	PrefixAPIKey       = "ratelimit:apikey:"
)

// Result reports a rate-limit decision. ResetAt lets callers derive a
// Retry-After hint.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Options tune one check. Zero values fall back to the limiter defaults.
type Options struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Limiter counts requests per identifier in fixed windows. The INCR and
// the first-request EXPIRE are two separate store calls; a crash between
// them leaves a counter without expiry for at most one window, an accepted
// wart rather than at-most-once accounting.
type Limiter struct {
	store       kv.Store
	maxRequests int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a limiter with default limits.
func New(store kv.Store, maxRequests int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:       store,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
		now:         time.Now,
	}
}

// Check counts one request against the identifier's current window. Store
// failures fail closed: an unreachable counter store must not turn into an
// unmetered endpoint.
func (l *Limiter) Check(ctx context.Context, identifier string, opts Options) Result {
	maxRequests := opts.MaxRequests
	if maxRequests <= 0 {
		maxRequests = l.maxRequests
	}
	window := opts.Window
	if window <= 0 {
		window = l.window
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = PrefixConversation
	}

	key := prefix + identifier
	now := l.now()
	// Sub-second windows floor to one second; the key expiry keeps the
	// caller's duration, only the boundary arithmetic is coarser.
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	windowStart := now.Unix() - now.Unix()%windowSecs
	resetAt := time.Unix(windowStart+windowSecs, 0)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.logger.Error("rate limit check failed",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()),
		)
		return Result{Allowed: false, Remaining: 0}
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			l.logger.Warn("rate limit expire failed", slog.String("key", key))
		}
	}

	remaining := maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(maxRequests) {
		l.logger.Warn("rate limit exceeded",
			slog.String("identifier", identifier),
			slog.Int64("count", count),
			slog.Int("max", maxRequests),
		)
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
