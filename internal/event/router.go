package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes a normalized event. Handlers are registered per
// (providerId, eventType) pair and run concurrently on dispatch.
type Handler func(ctx context.Context, ev Normalized) error

// Router maps (providerId, eventType) to registered handlers. Registration
// happens at composition-root time; the route map is read-only afterwards,
// so Dispatch needs no locking.
type Router struct {
	routes map[string][]Handler
	logger *slog.Logger
}

// NewRouter creates an empty event router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		routes: make(map[string][]Handler),
		logger: logger,
	}
}

func routeKey(providerID, eventType string) string {
	return providerID + ":" + eventType
}

// RegisterHandler appends a handler for the given provider and event type.
func (r *Router) RegisterHandler(providerID, eventType string, h Handler) {
	key := routeKey(providerID, eventType)
	r.routes[key] = append(r.routes[key], h)
	r.logger.Debug("registered event handler", slog.String("route", key))
}

// Dispatch runs all handlers registered for the event concurrently. A
// handler failure is logged and does not prevent the others from running or
// fail the dispatch. No handlers for a route is a warning, not an error:
// providers emit event types the engine may not care about yet.
func (r *Router) Dispatch(ctx context.Context, ev Normalized) error {
	key := routeKey(ev.ProviderID, ev.EventType)
	handlers := r.routes[key]

	if len(handlers) == 0 {
		r.logger.Warn("no handlers registered for event",
			slog.String("route", key),
			slog.String("external_id", ev.ExternalID),
		)
		return nil
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("event handler panicked",
						slog.String("route", key),
						slog.String("panic", fmt.Sprint(rec)),
					)
				}
			}()
			if err := h(ctx, ev); err != nil {
				r.logger.Error("event handler failed",
					slog.String("route", key),
					slog.String("external_id", ev.ExternalID),
					slog.String("error", err.Error()),
				)
			}
		}(h)
	}
	wg.Wait()
	return nil
}
