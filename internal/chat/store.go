package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

// DefaultContextTTL is how long an idle conversation survives.
const DefaultContextTTL = 24 * time.Hour

// ContextStore persists conversation state at context:<conversationId>.
// Writes are whole-context; concurrent requests for the same conversation
// are a last-write-wins race at the store level, by contract.
type ContextStore struct {
	store  kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewContextStore creates a context store. A non-positive ttl falls back
// to DefaultContextTTL.
func NewContextStore(store kv.Store, ttl time.Duration, logger *slog.Logger) *ContextStore {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	return &ContextStore{store: store, ttl: ttl, logger: logger}
}

func contextKey(conversationID string) string {
	return "context:" + conversationID
}

// Load returns the stored context, or a fresh empty one when none exists.
// The engine's initial-step fallback handles the empty CurrentStepID.
func (s *ContextStore) Load(ctx context.Context, conversationID string) (*Context, error) {
	data, err := s.store.Get(ctx, contextKey(conversationID))
	if errors.Is(err, kv.ErrNotFound) {
		return &Context{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", conversationID, err)
	}

	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		// A corrupt context would strand the conversation forever; start
		// over instead.
		s.logger.Error("corrupt chat context, resetting",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return &Context{}, nil
	}
	return &c, nil
}

// Save writes the context back in full, refreshing the TTL.
func (s *ContextStore) Save(ctx context.Context, conversationID string, c *Context) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", conversationID, err)
	}
	if err := s.store.Set(ctx, contextKey(conversationID), data, s.ttl); err != nil {
		return fmt.Errorf("save context %s: %w", conversationID, err)
	}
	return nil
}

// Delete removes a conversation's state.
func (s *ContextStore) Delete(ctx context.Context, conversationID string) error {
	return s.store.Del(ctx, contextKey(conversationID))
}
