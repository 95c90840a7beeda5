package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paybrew/coffeegate/internal/server"
)

// HandleWebhook is the payment-provider intake. The signature is checked
// against the exact raw body bytes before any parsing; a payload we cannot
// authenticate is never interpreted.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerId")
	server.AddLogField(r.Context(), "provider_id", providerID)

	p, ok := h.Providers.Resolve(providerID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown provider")
		return
	}

	secret := h.Secrets[providerID]
	if secret == "" {
		h.Logger.Error("webhook received for provider without a signing secret",
			slog.String("provider_id", providerID),
		)
		writeError(w, http.StatusInternalServerError, "Provider not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !p.VerifyRequest(r.Header, body, secret) {
		h.Logger.Warn("webhook signature verification failed",
			slog.String("provider_id", providerID),
		)
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	ev, err := p.Normalize(body)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Router.Dispatch(r.Context(), ev); err != nil {
		// Dispatch isolates handler failures internally; an error here is a
		// wiring bug, not a provider problem.
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "received": true})
}
