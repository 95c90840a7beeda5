package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/ai"
	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/config"
)

// AIChat is the gated destination: it forwards input to the generation
// client for as long as the context carries a live session. The session
// check happens before any generation call, so an expired session never
// costs an upstream request.
type AIChat struct {
	gen      ai.Generator
	messages config.Messages
	logger   *slog.Logger
	now      func() time.Time
}

// NewAIChat creates the gated chat step.
func NewAIChat(gen ai.Generator, messages config.Messages, logger *slog.Logger) *AIChat {
	return &AIChat{
		gen:      gen,
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AIChat) ID() string { return StepAIChat }

func (s *AIChat) Run(ctx context.Context, c *chat.Context, input string) (chat.StepResult, error) {
	if c.Session == nil || c.Session.Expired(s.now()) {
		if c.Session != nil {
			s.logger.Info("session expired, returning to paywall",
				slog.String("session_id", c.Session.ID),
			)
		}
		return chat.StepResult{
			Patch:      &chat.ContextPatch{ClearSession: true},
			Transition: chat.TransitionTo(StepCoffeeBreak),
		}, nil
	}

	if input == "" {
		return chat.StepResult{}, nil
	}

	reply, err := s.gen.Generate(ctx, input, history(c))
	if err != nil {
		s.logger.Warn("generation failed",
			slog.String("error", err.Error()),
		)
		msg := pick(s.messages.AIError, "Sorry, I couldn't come up with a reply. Please try again.")
		if errors.Is(err, ai.ErrTimeout) {
			msg = "That took longer than expected and timed out. Please try again."
		}
		return chat.StepResult{
			Messages: []chat.Message{chat.NewMessage(chat.RoleAssistant, msg)},
		}, nil
	}

	return chat.StepResult{
		Messages: []chat.Message{chat.NewMessage(chat.RoleAssistant, reply)},
	}, nil
}

// history projects the conversation for the generation client. System
// entries are internal commands and never leave the process.
func history(c *chat.Context) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(c.History))
	for _, m := range c.History {
		if m.Role == chat.RoleSystem {
			continue
		}
		out = append(out, ai.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
