// Package api exposes the HTTP surface: webhook intake, the conversation
// endpoint, verification, and the read-only reporting routes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/kv"
	"github.com/paybrew/coffeegate/internal/provider"
	"github.com/paybrew/coffeegate/internal/ratelimit"
	"github.com/paybrew/coffeegate/internal/server"
	"github.com/paybrew/coffeegate/internal/session"
	"github.com/paybrew/coffeegate/internal/verify"
)

// Handlers bundles the collaborators every endpoint needs. Wiring happens
// once in the composition root; the struct is read-only afterwards.
type Handlers struct {
	Logger    *slog.Logger
	Providers *provider.Registry
	// Secrets maps provider id to its webhook signing secret. A provider
	// without a secret cannot accept webhooks.
	Secrets  map[string]string
	Router   *event.Router
	History  *event.History
	Verifier *verify.Service
	Sessions *session.Store
	Contexts *chat.ContextStore
	Engine   *chat.Engine
	Limiter  *ratelimit.Limiter
	Store    kv.Store

	RateLimitMax   int
	MaxAutoAdvance int
	// APIKey guards the verify/consume endpoints. Empty disables the guard.
	APIKey string
}

// Routes mounts every endpoint on the router.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/{providerId}", h.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(server.RateLimitHeaderMiddleware)
			r.Post("/chat", h.HandleChat)
		})
		r.Get("/chat/state", h.HandleChatState)

		r.Group(func(r chi.Router) {
			r.Use(server.APIKeyMiddleware(h.APIKey))
			r.Post("/verify", h.HandleVerify)
			r.Post("/consume", h.HandleConsume)
		})

		r.Get("/session/{id}", h.HandleSession)
		r.Get("/events", h.HandleEvents)
		r.Get("/events/stats", h.HandleEventStats)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responds with the uniform {"error": ...} envelope. The message
// is user-facing; internals stay in the logs.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleHealth pings the backing store.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
