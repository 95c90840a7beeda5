package api

import (
	"net/http"
	"strconv"

	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/server"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type eventsResponse struct {
	Events []event.Normalized `json:"events"`
	Count  int                `json:"count"`
}

// HandleEvents lists a provider's stored events, newest first.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID := q.Get("providerId")
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	limit := parseQueryInt(q.Get("limit"), defaultEventLimit)
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	offset := parseQueryInt(q.Get("offset"), 0)

	var (
		events []event.Normalized
		err    error
	)
	if eventType := q.Get("type"); eventType != "" {
		events, err = h.History.EventsByType(r.Context(), providerID, eventType, limit, offset)
	} else {
		events, err = h.History.ProviderEvents(r.Context(), providerID, limit, offset)
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

// HandleEventStats aggregates a provider's event counts and revenue.
func (h *Handlers) HandleEventStats(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("providerId")
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	stats, err := h.History.ProviderStats(r.Context(), providerID)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load event stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func parseQueryInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
