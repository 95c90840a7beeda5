package api

import (
	"encoding/json"
	"net/http"

	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/ratelimit"
	"github.com/paybrew/coffeegate/internal/server"
)

type chatRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// stepResultPayload is the client-facing projection of a step result.
// System messages and conversation internals never appear here.
type stepResultPayload struct {
	Messages []chat.Message    `json:"messages"`
	UI       *chat.UIDirective `json:"ui,omitempty"`
}

type chatMetadata struct {
	CurrentStepID string `json:"currentStepId"`
	MessageCount  int    `json:"messageCount"`
	HasSession    bool   `json:"hasSession"`
}

type chatResponse struct {
	Result   stepResultPayload `json:"result"`
	Metadata chatMetadata      `json:"metadata"`
}

// HandleChat runs one turn of the conversation. Context is owned entirely
// by the server: a payload trying to smuggle one in is rejected outright.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := raw["ctx"]; ok {
		writeError(w, http.StatusBadRequest, "Context cannot be supplied by clients")
		return
	}
	if _, ok := raw["context"]; ok {
		writeError(w, http.StatusBadRequest, "Context cannot be supplied by clients")
		return
	}

	var req chatRequest
	if v, ok := raw["conversationId"]; ok {
		if err := json.Unmarshal(v, &req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid conversationId")
			return
		}
	}
	if v, ok := raw["message"]; ok {
		if err := json.Unmarshal(v, &req.Message); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid message")
			return
		}
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	server.AddLogField(r.Context(), "conversation_id", req.ConversationID)

	limit := h.Limiter.Check(r.Context(), req.ConversationID, ratelimit.Options{
		KeyPrefix: ratelimit.PrefixConversation,
	})
	server.SetRateLimits(r.Context(), h.RateLimitMax, limit.Remaining, limit.ResetAt.Unix())
	if !limit.Allowed {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please slow down.")
		return
	}

	c, err := h.Contexts.Load(r.Context(), req.ConversationID)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	res, err := h.Engine.Dispatch(r.Context(), c, req.Message)
	if err != nil {
		// Stored context stays untouched: the failed turn never happened.
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Conversation step failed")
		return
	}
	if res.Silent() {
		res, err = h.Engine.AutoAdvance(r.Context(), c, h.MaxAutoAdvance)
		if err != nil {
			server.AddError(r.Context(), err)
			writeError(w, http.StatusInternalServerError, "Conversation step failed")
			return
		}
	}

	if err := h.Contexts.Save(r.Context(), req.ConversationID, c); err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to persist conversation")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Result: stepResultPayload{
			Messages: visibleMessages(res.Messages),
			UI:       res.UI,
		},
		Metadata: h.metadataForContext(c),
	})
}

// HandleChatState returns conversation metadata without any history or
// session internals.
func (h *Handlers) HandleChatState(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	c, err := h.Contexts.Load(r.Context(), conversationID)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, h.metadataForContext(c))
}

func (h *Handlers) metadataStepID(c *chat.Context) string {
	if c.CurrentStepID == "" {
		return h.Engine.InitialStepID()
	}
	return c.CurrentStepID
}

func (h *Handlers) metadataForContext(c *chat.Context) chatMetadata {
	return chatMetadata{
		CurrentStepID: h.metadataStepID(c),
		MessageCount:  c.MessageCount,
		HasSession:    c.Session != nil,
	}
}

// visibleMessages strips system entries; they are engine-internal
// signaling, never rendered.
func visibleMessages(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
