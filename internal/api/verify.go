package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paybrew/coffeegate/internal/server"
	"github.com/paybrew/coffeegate/internal/verify"
)

type verifyRequest struct {
	TransactionID string `json:"transactionId"`
	ProviderID    string `json:"providerId"`
}

func (h *Handlers) decodeVerifyRequest(w http.ResponseWriter, r *http.Request) (verifyRequest, bool) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "transactionId is required")
		return req, false
	}
	if req.ProviderID == "" {
		req.ProviderID = h.Providers.Default()
	}
	return req, true
}

// HandleVerify checks a claimed transaction without consuming it. Invalid
// claims are a 200 with valid=false: the check succeeded, the claim
// didn't.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerifyRequest(w, r)
	if !ok {
		return
	}

	server.AddLogField(r.Context(), "provider_id", req.ProviderID)
	result := h.Verifier.Verify(r.Context(), req.TransactionID, req.ProviderID)
	writeJSON(w, http.StatusOK, result)
}

type consumeResponse struct {
	Granted          bool   `json:"granted"`
	AccessTTLSeconds int64  `json:"accessTtlSeconds"`
	Message          string `json:"message"`
}

// HandleConsume exchanges a verified transaction for access, single shot.
func (h *Handlers) HandleConsume(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerifyRequest(w, r)
	if !ok {
		return
	}

	server.AddLogField(r.Context(), "provider_id", req.ProviderID)

	outcome, err := h.Verifier.Consume(r.Context(), req.TransactionID, req.ProviderID)
	switch {
	case errors.Is(err, verify.ErrAlreadyUsed):
		writeError(w, http.StatusBadRequest, verify.ReasonAlreadyUsed)
		return
	case errors.Is(err, verify.ErrNotFound):
		writeError(w, http.StatusNotFound, verify.ReasonNotFound)
		return
	case err != nil:
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, verify.ReasonInternalError)
		return
	}

	writeJSON(w, http.StatusOK, consumeResponse{
		Granted:          true,
		AccessTTLSeconds: int64(outcome.AccessTTL.Seconds()),
		Message:          outcome.Message,
	})
}
