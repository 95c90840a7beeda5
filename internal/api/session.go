package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paybrew/coffeegate/internal/server"
	"github.com/paybrew/coffeegate/internal/session"
)

type sessionResponse struct {
	Exists     bool   `json:"exists"`
	ExpiresAt  int64  `json:"expiresAt,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// HandleSession reports whether a session exists and when it expires.
// Payer details stay server-side.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.Sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, sessionResponse{Exists: false})
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Exists:     true,
		ExpiresAt:  sess.ExpiresAt,
		ProviderID: sess.ProviderID,
	})
}
