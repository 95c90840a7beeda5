package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/config"
	"github.com/paybrew/coffeegate/internal/session"
	"github.com/paybrew/coffeegate/internal/verify"
)

// Verify collects a transaction id, checks it against the verification
// service, and on first success exchanges it for a proof-of-payment
// session. Transaction ids are opaque strings; no shape is assumed.
type Verify struct {
	svc      *verify.Service
	sessions *session.Store
	messages config.Messages
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerify creates the verification step.
func NewVerify(svc *verify.Service, sessions *session.Store, messages config.Messages, logger *slog.Logger) *Verify {
	return &Verify{
		svc:      svc,
		sessions: sessions,
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Verify) ID() string { return StepVerify }

func (s *Verify) Run(ctx context.Context, c *chat.Context, input string) (chat.StepResult, error) {
	if c.Provider == nil {
		return chat.StepResult{
			Messages: []chat.Message{
				chat.NewMessage(chat.RoleAssistant, "Let's pick a payment provider first."),
			},
			Transition: chat.TransitionTo(StepCoffeeBreak),
		}, nil
	}

	if input == "" {
		return chat.StepResult{
			Messages: []chat.Message{
				chat.NewMessage(chat.RoleAssistant, pick(s.messages.AskForTx, "Please paste your transaction id so I can verify the payment.")),
			},
			UI: &chat.UIDirective{Component: ComponentVerificationCard},
		}, nil
	}

	res := s.svc.Verify(ctx, input, c.Provider.ID)
	if !res.Valid {
		return s.failure(res.Reason), nil
	}

	// Consumption is separate from verification so a crash between the two
	// leaves the transaction retryable instead of burned.
	outcome, err := s.svc.Consume(ctx, input, c.Provider.ID)
	if err != nil {
		// Includes the race where a concurrent request consumed the
		// transaction between our verify and consume.
		s.logger.Warn("consumption failed after successful verification",
			slog.String("provider_id", c.Provider.ID),
			slog.String("error", err.Error()),
		)
		reason := verify.ReasonInternalError
		switch {
		case errors.Is(err, verify.ErrAlreadyUsed):
			reason = verify.ReasonAlreadyUsed
		case errors.Is(err, verify.ErrNotFound):
			reason = verify.ReasonNotFound
		}
		return s.failure(reason), nil
	}

	now := s.now()
	sess := session.Session{
		ID:            session.NewID(),
		ExpiresAt:     now.Add(outcome.AccessTTL).UnixMilli(),
		VerifiedAt:    now.UTC().Format(time.RFC3339),
		PayerEmail:    res.PayerEmail,
		TransactionID: res.ExternalID,
		ProviderID:    res.ProviderID,
		AmountMinor:   res.AmountMinor,
		Currency:      res.Currency,
	}

	// The context patch is what gates ai_chat; the session store is a
	// secondary lookup surface, so a write failure downgrades to a log.
	if err := s.sessions.Create(ctx, sess, outcome.AccessTTL); err != nil {
		s.logger.Error("session persistence failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}

	return chat.StepResult{
		Messages: []chat.Message{
			chat.NewMessage(chat.RoleAssistant, outcome.Message),
		},
		Patch:      &chat.ContextPatch{Session: &sess},
		Transition: chat.TransitionTo(StepAIChat),
	}, nil
}

func (s *Verify) failure(reason string) chat.StepResult {
	return chat.StepResult{
		Messages: []chat.Message{
			chat.NewMessage(chat.RoleAssistant, pick(s.messages.TxFail, "I couldn't verify that transaction. Please try again.")),
		},
		UI: &chat.UIDirective{
			Component: ComponentVerificationCard,
			Props:     map[string]any{"error": reason},
		},
	}
}
